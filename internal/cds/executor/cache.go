// internal/cds/executor/cache.go
package executor

import (
	"context"
	"sync"
	"time"

	"cds-orchestrator/internal/cds/model"
)

// ResponseCache holds short-lived per-service hook responses. Implementations
// are injectable so tests can control TTL expiry deterministically.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*model.HookResponse, bool)
	Set(ctx context.Context, key string, resp *model.HookResponse, ttl time.Duration)
	// Prune drops expired entries opportunistically. Implementations with
	// native expiry may treat it as a no-op.
	Prune(ctx context.Context)
	Invalidate(ctx context.Context)
}

type memoryEntry struct {
	resp     model.HookResponse
	cachedAt time.Time
	ttl      time.Duration
}

// MemoryCache is the in-process ResponseCache used when no Redis is
// configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*model.HookResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.cachedAt) >= entry.ttl {
		delete(c.entries, key)
		return nil, false
	}

	resp := entry.resp
	return &resp, true
}

func (c *MemoryCache) Set(_ context.Context, key string, resp *model.HookResponse, ttl time.Duration) {
	if resp == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{resp: *resp, cachedAt: c.now(), ttl: ttl}
}

func (c *MemoryCache) Prune(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if c.now().Sub(entry.cachedAt) >= entry.ttl {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}
