package modulecache

import (
	"context"
	"sync"
	"time"
)

// InMemoryCache is a dependency-free Cache backend, grounded on
// oriys-nova/internal/cache's TTL-eviction idiom: a background
// goroutine periodically sweeps expired entries so Get never needs to
// check expiry itself beyond the simple comparison on read. Used as
// the default when no Redis address is configured, and in tests as a
// RedisCache stand-in.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	closed  chan struct{}
}

type entry struct {
	module    *CachedModule
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// NewInMemoryCache constructs an InMemoryCache and starts its eviction loop.
func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]*entry),
		closed:  make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

func (c *InMemoryCache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *InMemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, e := range c.entries {
		if e.expired() {
			delete(c.entries, path)
		}
	}
}

func (c *InMemoryCache) Get(_ context.Context, path string) (*CachedModule, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	if !ok || e.expired() {
		return nil, false, nil
	}
	return e.module, true, nil
}

func (c *InMemoryCache) Set(_ context.Context, path string, m *CachedModule, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = &entry{module: m, expiresAt: expiresAt}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
	return nil
}

func (c *InMemoryCache) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}
