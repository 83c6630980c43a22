package tangguh

import (
	"context"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type contextKey string

// CacheControlKey is the context key under which a *CacheControl override
// travels.
const CacheControlKey contextKey = "tangguh_cache_control"

// CacheControl overrides the client's caching decision for every request
// carrying the context it is attached to.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheEnabled forces caching on for requests using ctx, even for
// methods the cache condition would normally exclude.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled forces caching off for requests using ctx.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL enables caching for requests using ctx with the given
// entry TTL instead of the client default.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}

// Entry is a cached response. Valid while now - StoredAt < TTL. Entries are
// owned by the cache store and evicted lazily on lookup; there is no
// background sweeper.
type Entry struct {
	StatusCode int           `json:"status_code"`
	Header     http.Header   `json:"header"`
	Body       []byte        `json:"body"`
	StoredAt   time.Time     `json:"stored_at"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the entry is stale at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// response reconstructs a Response from the entry.
func (e *Entry) response() *Response {
	return &Response{
		StatusCode: e.StatusCode,
		Header:     e.Header.Clone(),
		Body:       e.Body,
	}
}

// Cache maps request fingerprints to entries. Implementations must treat an
// expired entry as absent on Get and remove it as a side effect.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry, ttl time.Duration)
	Delete(key string)
	Clear()
}

const memoryCacheShards = 16

// MemoryCache is the default in-process cache: a sharded map with TTL checked
// lazily on read.
type MemoryCache struct {
	shards [memoryCacheShards]*cacheShard
	clock  Clock
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*Entry
}

// NewMemoryCache creates an in-memory cache on the system clock.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(SystemClock())
}

// NewMemoryCacheWithClock creates an in-memory cache with an injected clock.
func NewMemoryCacheWithClock(clock Clock) *MemoryCache {
	c := &MemoryCache{clock: clock}
	for i := range c.shards {
		c.shards[i] = &cacheShard{store: make(map[string]*Entry)}
	}
	return c
}

func (c *MemoryCache) shard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%memoryCacheShards]
}

// Get returns the entry for key if present and fresh. An expired entry is
// removed and reported absent.
func (c *MemoryCache) Get(key string) (*Entry, bool) {
	shard := c.shard(key)

	shard.mu.RLock()
	entry, exists := shard.store[key]
	shard.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.Expired(c.clock.Now()) {
		shard.mu.Lock()
		// Re-check: another goroutine may have replaced the entry.
		if cur, ok := shard.store[key]; ok && cur == entry {
			delete(shard.store, key)
		}
		shard.mu.Unlock()
		return nil, false
	}
	return entry, true
}

// Set stores entry under key with the given ttl.
func (c *MemoryCache) Set(key string, entry *Entry, ttl time.Duration) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.StoredAt = c.clock.Now()
	entry.TTL = ttl
	shard.store[key] = entry
}

// Delete removes the entry for key.
func (c *MemoryCache) Delete(key string) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Entry)
		shard.mu.Unlock()
	}
}

// Len reports the total number of stored entries, including not-yet-evicted
// stale ones.
func (c *MemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// cacheControlTTL extracts a TTL from a Cache-Control max-age directive.
// Returns 0 when no usable directive is present or caching is forbidden.
func cacheControlTTL(header http.Header) time.Duration {
	cc := header.Get("Cache-Control")
	if cc == "" {
		return 0
	}
	for _, directive := range strings.Split(cc, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if directive == "no-store" || directive == "no-cache" {
			return 0
		}
		if rest, ok := strings.CutPrefix(directive, "max-age="); ok {
			secs, err := strconv.Atoi(rest)
			if err != nil || secs <= 0 {
				return 0
			}
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
