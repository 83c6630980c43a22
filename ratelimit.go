package tangguh

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket: maxTokens capacity, one token refilled every
// refillRate. Safe for concurrent use.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	clock      Clock
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	clock := SystemClock()
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// Allow consumes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if rl.refillRate > 0 {
		refill := int(now.Sub(rl.lastRefill) / rl.refillRate)
		if refill > 0 {
			rl.tokens += refill
			if rl.tokens > rl.maxTokens {
				rl.tokens = rl.maxTokens
			}
			rl.lastRefill = now
		}
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens reports the currently available tokens.
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

// HostRateLimiter keys independent token buckets by request host, so one slow
// upstream cannot starve calls to another.
type HostRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*RateLimiter
	maxTokens  int
	refillRate time.Duration
}

// NewHostRateLimiter creates a per-host limiter factory with shared settings.
func NewHostRateLimiter(maxTokens int, refillRate time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}
}

// Allow consumes a token from the bucket for host, creating it on first use.
func (h *HostRateLimiter) Allow(host string) bool {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = NewRateLimiter(h.maxTokens, h.refillRate)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	return limiter.Allow()
}

// Tokens reports the available tokens for host, maxTokens when the bucket has
// not been used yet.
func (h *HostRateLimiter) Tokens(host string) int {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	h.mu.Unlock()

	if !ok {
		return h.maxTokens
	}
	return limiter.Tokens()
}
