package tangguh

import (
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// OtterCache is a bounded in-memory cache backend. Unlike MemoryCache it
// enforces a maximum entry count with frequency-based eviction; freshness is
// still decided by the entry's own TTL on read.
type OtterCache struct {
	cache   *otter.Cache[string, *Entry]
	counter *stats.Counter
	clock   Clock
}

// NewOtterCache creates a bounded cache holding at most maxEntries entries.
// maxLifetime is a hard ceiling after which entries are dropped regardless of
// their TTL.
func NewOtterCache(maxEntries int, maxLifetime time.Duration) *OtterCache {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, *Entry]{
		MaximumSize:      maxEntries,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, *Entry](maxLifetime),
	})
	return &OtterCache{
		cache:   cache,
		counter: counter,
		clock:   SystemClock(),
	}
}

// Get returns the entry for key if present and fresh.
func (c *OtterCache) Get(key string) (*Entry, bool) {
	entry, ok := c.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if entry.Expired(c.clock.Now()) {
		c.cache.Invalidate(key)
		return nil, false
	}
	return entry, true
}

// Set stores entry under key with the given ttl.
func (c *OtterCache) Set(key string, entry *Entry, ttl time.Duration) {
	entry.StoredAt = c.clock.Now()
	entry.TTL = ttl
	c.cache.Set(key, entry)
}

// Delete removes the entry for key.
func (c *OtterCache) Delete(key string) {
	c.cache.Invalidate(key)
}

// Clear removes all entries.
func (c *OtterCache) Clear() {
	c.cache.InvalidateAll()
}

// Stats exposes the underlying hit/miss counters.
func (c *OtterCache) Stats() stats.Stats {
	return c.counter.Snapshot()
}
