package tangguh

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds each cache round trip so a slow Redis never stalls
// request dispatch.
const redisOpTimeout = 250 * time.Millisecond

// RedisCache is a shared cache backend for multi-process deployments.
// Entries are JSON-encoded; Redis key expiry mirrors the entry TTL so the
// server reclaims stale entries that are never read again.
type RedisCache struct {
	client *redis.Client
	prefix string
	clock  Clock
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithRedisCachePrefix sets the key prefix (default "tangguh:cache").
func WithRedisCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: "tangguh:cache",
		clock:  SystemClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(key string) string { return c.prefix + ":" + key }

// Get returns the entry for key if present and fresh.
func (c *RedisCache) Get(key string) (*Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Unreadable entries are dropped rather than served.
		c.Delete(key)
		return nil, false
	}
	if entry.Expired(c.clock.Now()) {
		c.Delete(key)
		return nil, false
	}
	return &entry, true
}

// Set stores entry under key with the given ttl.
func (c *RedisCache) Set(key string, entry *Entry, ttl time.Duration) {
	entry.StoredAt = c.clock.Now()
	entry.TTL = ttl

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes the entry for key.
func (c *RedisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = c.client.Del(ctx, c.key(key)).Err()
}

// Clear removes all entries under the cache prefix.
func (c *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}

// Ping verifies connectivity, for startup checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return errors.New("tangguh: redis cache is not initialized")
	}
	return c.client.Ping(ctx).Err()
}
