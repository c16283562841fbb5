package common

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

func snowflakeInstance() *snowflake.Node {
	snowflakeOnce.Do(func() {
		node, err := snowflake.NewNode(rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1023))
		if err != nil {
			panic(err)
		}
		snowflakeNode = node
	})
	return snowflakeNode
}

// UUIDint64 returns a snowflake int64 id.
func UUIDint64() int64 {
	return snowflakeInstance().Generate().Int64()
}

// UUID returns a random uuid string without dashes, used for opaque tokens.
func UUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsEmptyOrNA reports whether the string carries no usable value.
func IsEmptyOrNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "n/a")
}
