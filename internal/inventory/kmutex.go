package inventory

import "sync"

// kmutex provides one mutex per product id so ledger mutations for
// different products never contend while mutations for the same product
// are serialized. Entries are never evicted; the map grows with the set
// of product ids ever locked.
type kmutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKmutex() *kmutex {
	return &kmutex{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for the given key, creating it on first use.
// The returned unlock func releases it.
func (k *kmutex) Lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
