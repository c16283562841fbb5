package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]string]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusProcessing, StatusShipped}:   true,
		{StatusProcessing, StatusCancelled}: true,
		{StatusShipped, StatusDelivered}:    true,
		{StatusShipped, StatusCancelled}:    true,
	}
	statuses := []string{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]string{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusPending))
	assert.True(t, ValidStatus(StatusCancelled))
	assert.False(t, ValidStatus(""))
	assert.False(t, ValidStatus("archived"))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusShipped))
	assert.True(t, IsTerminal(StatusDelivered))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal("archived"))
}

func TestFulfillmentStatus(t *testing.T) {
	assert.Equal(t, "unfulfilled", FulfillmentStatus(StatusPending))
	assert.Equal(t, "unfulfilled", FulfillmentStatus(StatusProcessing))
	assert.Equal(t, "in_transit", FulfillmentStatus(StatusShipped))
	assert.Equal(t, "fulfilled", FulfillmentStatus(StatusDelivered))
	assert.Equal(t, "cancelled", FulfillmentStatus(StatusCancelled))
}
