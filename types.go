package tangguh

import (
	"net/http"
	"time"
)

// Transport performs the actual network I/O for one dispatch. The standard
// library's http.Transport satisfies it; tests inject fakes. Implementations
// must honour cancellation of the request context promptly.
type Transport interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(*http.Request) (*http.Response, error)

func (f TransportFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps the transport for cross-cutting concerns. Middleware run
// in registration order, the first registered being outermost.
type Middleware func(req *http.Request, next Transport) (*http.Response, error)

// CacheCondition decides whether a request is eligible for caching.
type CacheCondition func(req Request) bool

// DedupeCondition decides whether a request is eligible for in-flight
// de-duplication.
type DedupeCondition func(req Request) bool

// FingerprintFunc derives the cache/de-duplication key for a request. Two
// requests that are semantically identical for caching purposes must map to
// the same fingerprint; per-call headers (trace ids and the like) must not
// contribute.
type FingerprintFunc func(req Request) string

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// Option configures a Client at construction.
type Option func(*Client)

// CallOption overrides client defaults for a single Execute call.
type CallOption func(*callConfig)

// callConfig is the resolved per-call configuration.
type callConfig struct {
	cacheTTL      time.Duration
	cacheDisabled bool
	maxRetries    int
	timeout       time.Duration
	dedupe        bool
}

// WithCallCacheTTL sets the cache TTL for this call only.
func WithCallCacheTTL(ttl time.Duration) CallOption {
	return func(cc *callConfig) {
		cc.cacheTTL = ttl
		cc.cacheDisabled = false
	}
}

// WithCallNoCache disables cache lookup and fill for this call.
func WithCallNoCache() CallOption {
	return func(cc *callConfig) { cc.cacheDisabled = true }
}

// WithCallMaxRetries overrides the retry budget for this call.
func WithCallMaxRetries(n int) CallOption {
	return func(cc *callConfig) { cc.maxRetries = n }
}

// WithCallTimeout overrides the per-attempt timeout for this call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(cc *callConfig) { cc.timeout = d }
}

// WithCallNoDedupe opts this call out of in-flight de-duplication.
func WithCallNoDedupe() CallOption {
	return func(cc *callConfig) { cc.dedupe = false }
}
