package reconciler

import (
	"sync"
	"time"
)

// processedCache remembers punishment ids handled recently so overlapping
// scans can skip them without a database round trip. It is an optimization
// only; correctness rests on the store's compare-and-set, never on this map.
type processedCache struct {
	mu         sync.Mutex
	entries    map[int64]time.Time
	ttl        time.Duration
	skipWindow time.Duration
}

func newProcessedCache(ttl, skipWindow time.Duration) *processedCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if skipWindow <= 0 {
		skipWindow = 30 * time.Second
	}
	return &processedCache{
		entries:    make(map[int64]time.Time),
		ttl:        ttl,
		skipWindow: skipWindow,
	}
}

// mark records that a punishment was just handled.
func (c *processedCache) mark(id int64) {
	c.mu.Lock()
	c.entries[id] = time.Now()
	c.mu.Unlock()
}

// recentlyProcessed reports whether the id was handled within the skip window.
func (c *processedCache) recentlyProcessed(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.entries[id]
	return ok && time.Since(at) < c.skipWindow
}

// prune drops entries older than the TTL. Called at the top of each scan so
// the map stays bounded by one TTL window of activity.
func (c *processedCache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-c.ttl)
	for id, at := range c.entries {
		if at.Before(cutoff) {
			delete(c.entries, id)
		}
	}
}

// size returns the current entry count.
func (c *processedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
