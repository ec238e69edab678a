package cache

import (
	"context"
	"sync"
	"time"

	"georef/internal/transform"
	"georef/pkg/platform/sentinel"
)

type memoryEntry struct {
	set       transform.ResidualSet
	expiresAt time.Time
}

// MemoryCache is a process-local residual cache for single-instance runs
// and tests. Expired entries are dropped on read and by a sweep that Set
// runs at most once per TTL.
type MemoryCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[uint64]memoryEntry
	nextSweep time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[uint64]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, fingerprint uint64) (transform.ResidualSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return transform.ResidualSet{}, sentinel.ErrCacheMiss
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, fingerprint)
		return transform.ResidualSet{}, sentinel.ErrCacheMiss
	}
	return cloneSet(entry.set), nil
}

func (c *MemoryCache) Set(_ context.Context, fingerprint uint64, set transform.ResidualSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
		c.nextSweep = now.Add(c.ttl)
	}
	c.entries[fingerprint] = memoryEntry{set: cloneSet(set), expiresAt: now.Add(c.ttl)}
	return nil
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	for fingerprint, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, fingerprint)
		}
	}
}

func cloneSet(set transform.ResidualSet) transform.ResidualSet {
	set.Residuals = append([]float64(nil), set.Residuals...)
	return set
}
