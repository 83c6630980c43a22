package tangguh

import (
	"errors"
	"fmt"
	"time"
)

// WithTransport sets the transport used for network I/O.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxRetries sets the retry budget: a request is attempted at most
// n+1 times.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryPolicy replaces the whole retry policy, including any delay
// strategy already selected on it.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) { c.retry.InitialBackoff = d }
}

// WithMaxBackoff caps the computed retry delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.retry.MaxBackoff = d }
}

// WithBackoffMultiplier sets the exponential growth factor.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Client) { c.retry.Multiplier = m }
}

// WithJitter sets the random jitter fraction in [0,1].
func WithJitter(j float64) Option {
	return func(c *Client) { c.retry.Jitter = j }
}

// WithBackoffStrategy selects the delay growth algorithm.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) { c.retry = c.retry.WithStrategy(s) }
}

// WithRetryOn429 additionally retries 429 responses, honouring Retry-After.
func WithRetryOn429() Option {
	return func(c *Client) { c.retry.RetryOn429 = true }
}

// WithCache enables response caching in a sharded in-memory store with the
// given default TTL.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithCacheBackend enables response caching in the supplied store.
func WithCacheBackend(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheCondition overrides which requests are cache-eligible.
func WithCacheCondition(cond CacheCondition) Option {
	return func(c *Client) { c.cacheCondition = cond }
}

// WithCacheControlTTL derives entry TTLs from the response Cache-Control
// header when present, falling back to the configured TTL.
func WithCacheControlTTL() Option {
	return func(c *Client) { c.cacheControlTTL = true }
}

// WithFingerprintFunc replaces the request fingerprint derivation.
func WithFingerprintFunc(fn FingerprintFunc) Option {
	return func(c *Client) { c.fingerprint = fn }
}

// WithFingerprintHeaders folds the named headers into the fingerprint, for
// upstreams whose responses vary on them.
func WithFingerprintHeaders(names ...string) Option {
	return func(c *Client) { c.fingerprint = FingerprintWithHeaders(names...) }
}

// WithoutDeduplication disables in-flight request de-duplication.
func WithoutDeduplication() Option {
	return func(c *Client) { c.dedupeEnabled = false }
}

// WithDedupeCondition overrides which requests are de-duplication eligible.
func WithDedupeCondition(cond DedupeCondition) Option {
	return func(c *Client) { c.dedupCondition = cond }
}

// WithAuth manages credentials with the given token manager: tokens are
// attached to every dispatch and refreshed on expiry or a 401.
func WithAuth(tm *TokenManager) Option {
	return func(c *Client) { c.auth = tm }
}

// WithCircuitBreaker enables circuit breaking with the given config.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) { c.breaker = NewCircuitBreaker(config) }
}

// WithRateLimiter enables a global token-bucket rate limiter.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) { c.rateLimiter = NewRateLimiter(maxTokens, refillRate) }
}

// WithPerHostRateLimiter enables an independent token bucket per request host.
func WithPerHostRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) { c.hostLimiter = NewHostRateLimiter(maxTokens, refillRate) }
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) { c.metrics = NewMetricsCollector() }
}

// WithMetricsCollector enables metrics through the supplied collector.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) { c.metrics = mc }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSimpleLogger enables console logging to stderr.
func WithSimpleLogger() Option {
	return func(c *Client) { c.logger = NewSimpleLogger() }
}

// WithDebug turns on debug logging for all event categories.
func WithDebug() Option {
	return func(c *Client) {
		c.debug = DefaultDebugConfig()
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) { c.debug = cfg }
}

// WithClock injects the time source, for tests.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithMiddleware appends middleware to the chain. Middleware run in
// registration order, the first registered being outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) { c.middleware = append(c.middleware, mw...) }
}

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// ValidateConfiguration checks the client configuration for inconsistent or
// out-of-range values, returning all problems joined together.
func (c *Client) ValidateConfiguration() error {
	var errs []error

	if c.transport == nil {
		errs = append(errs, &ValidationError{Field: "Transport", Value: nil, Message: "must not be nil"})
	}
	if c.timeout <= 0 {
		errs = append(errs, &ValidationError{Field: "Timeout", Value: c.timeout, Message: "must be positive"})
	}
	if c.maxRetries < 0 {
		errs = append(errs, &ValidationError{Field: "MaxRetries", Value: c.maxRetries, Message: "must not be negative"})
	}
	if c.retry.InitialBackoff <= 0 {
		errs = append(errs, &ValidationError{Field: "InitialBackoff", Value: c.retry.InitialBackoff, Message: "must be positive"})
	}
	if c.retry.MaxBackoff < c.retry.InitialBackoff {
		errs = append(errs, &ValidationError{Field: "MaxBackoff", Value: c.retry.MaxBackoff, Message: "must be at least InitialBackoff"})
	}
	if c.retry.Multiplier < 1 {
		errs = append(errs, &ValidationError{Field: "BackoffMultiplier", Value: c.retry.Multiplier, Message: "must be at least 1"})
	}
	if c.retry.Jitter < 0 || c.retry.Jitter > 1 {
		errs = append(errs, &ValidationError{Field: "Jitter", Value: c.retry.Jitter, Message: "must be between 0 and 1"})
	}
	if c.cache != nil && c.cacheTTL <= 0 {
		errs = append(errs, &ValidationError{Field: "CacheTTL", Value: c.cacheTTL, Message: "must be positive when caching is enabled"})
	}
	if c.fingerprint == nil {
		errs = append(errs, &ValidationError{Field: "FingerprintFunc", Value: nil, Message: "must not be nil"})
	}
	if c.cacheCondition == nil {
		errs = append(errs, &ValidationError{Field: "CacheCondition", Value: nil, Message: "must not be nil"})
	}
	if c.dedupCondition == nil {
		errs = append(errs, &ValidationError{Field: "DedupeCondition", Value: nil, Message: "must not be nil"})
	}
	if c.clock == nil {
		errs = append(errs, &ValidationError{Field: "Clock", Value: nil, Message: "must not be nil"})
	}

	return errors.Join(errs...)
}
