package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultLockStripes = 64

// stripedMutex serializes callers that share a key. Distinct keys may share a
// stripe, which only costs parallelism.
type stripedMutex struct {
	stripes []sync.Mutex
}

func newStripedMutex(n int) *stripedMutex {
	if n < 1 {
		n = defaultLockStripes
	}
	return &stripedMutex{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *stripedMutex) Lock(key string) func() {
	mu := &m.stripes[xxhash.Sum64String(key)%uint64(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
