package rules

import (
	"sync"
	"time"
)

// InMemorySpecCache is a SpecCache held in process memory. It is safe for
// concurrent use.
type InMemorySpecCache struct {
	specs    []*SpecRecord
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	valid    bool
}

// NewInMemorySpecCache creates an empty cache.
func NewInMemorySpecCache(config CacheConfig) *InMemorySpecCache {
	return &InMemorySpecCache{config: config}
}

func (c *InMemorySpecCache) Get() []*SpecRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}
	out := make([]*SpecRecord, len(c.specs))
	copy(out, c.specs)
	return out
}

func (c *InMemorySpecCache) Set(specs []*SpecRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.specs = make([]*SpecRecord, len(specs))
	copy(c.specs, specs)
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *InMemorySpecCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.specs = nil
}

func (c *InMemorySpecCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh()
}

// fresh must be called with c.mu held.
func (c *InMemorySpecCache) fresh() bool {
	if !c.valid {
		return false
	}
	return c.config.TTL <= 0 || time.Since(c.cachedAt) <= c.config.TTL
}
