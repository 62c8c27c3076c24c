package geocode

import (
	"context"
	"sync"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Cache is a durable memo from normalized address to location. Entries are
// only added or overwritten. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (model.Location, bool, error)
	Put(ctx context.Context, key string, loc model.Location) error
	Close() error
}

// MemoryCache keeps entries for the life of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]model.Location
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]model.Location)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (model.Location, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.entries[key]
	return loc, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, loc model.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loc
	return nil
}

// Len returns the number of cached addresses.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error { return nil }
