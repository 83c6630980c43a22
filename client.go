package tangguh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Client is a resilient request client that layers caching, in-flight
// de-duplication, auth token management, retries, circuit breaking and rate
// limiting around an injected Transport. It is safe for concurrent use.
type Client struct {
	transport  Transport
	middleware []Middleware
	timeout    time.Duration
	maxRetries int
	retry      RetryPolicy
	clock      Clock

	cache           Cache
	cacheTTL        time.Duration
	cacheCondition  CacheCondition
	cacheControlTTL bool

	dedup          *dedupRegistry
	dedupeEnabled  bool
	dedupCondition DedupeCondition

	fingerprint FingerprintFunc

	auth *TokenManager

	breaker     *CircuitBreaker
	rateLimiter *RateLimiter
	hostLimiter *HostRateLimiter

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		transport:      http.DefaultTransport,
		middleware:     []Middleware{},
		timeout:        30 * time.Second,
		maxRetries:     3,
		retry:          DefaultRetryPolicy(),
		clock:          SystemClock(),
		cache:          nil,
		cacheTTL:       5 * time.Minute,
		cacheCondition: DefaultCacheCondition,
		dedup:          newDedupRegistry(),
		dedupeEnabled:  true,
		dedupCondition: DefaultDedupeCondition,
		fingerprint:    DefaultFingerprint,
		debug:          DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Execute runs one logical request: fingerprint, cache lookup, de-duplicated
// dispatch with auth and retries, cache fill. It is the sole entry point for
// issuing a request; Get/Post and the JSON helpers build on it.
func (c *Client) Execute(ctx context.Context, req Request, opts ...CallOption) (*Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if err := req.validate(); err != nil {
		return nil, &RequestError{
			Kind:      KindValidation,
			Message:   "invalid request",
			Cause:     err,
			Method:    req.Method,
			URL:       req.URL,
			Timestamp: c.clock.Now(),
		}
	}

	cfg := c.resolveCall(req, opts)
	start := c.clock.Now()
	endpoint := endpointOf(req.URL)

	var requestID string
	if c.debugEnabled() && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debugEnabled() && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request", "requestID", requestID, "method", req.Method, "url", req.URL)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	fp := c.fingerprint(req)

	cacheTTL := c.cacheTTLFor(ctx, cfg)
	cacheEnabled := c.shouldCache(ctx, req, cfg) && cacheTTL > 0
	if cacheEnabled {
		if entry, found := c.cache.Get(fp); found {
			if c.debugEnabled() && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("cache hit", "requestID", requestID, "fingerprint", fp)
			}
			c.metrics.RecordCacheHit(req.Method, endpoint)
			c.metrics.RecordRequest(req.Method, endpoint, entry.StatusCode, c.clock.Now().Sub(start))
			return entry.response(), nil
		}
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	// The underlying operation: dispatch with retries, then fill the cache.
	// Under de-duplication this runs once per fingerprint no matter how many
	// callers joined, so the cache is written once too.
	operation := func(opCtx context.Context) (*Response, error) {
		resp, err := c.dispatchWithRetry(opCtx, req, cfg, requestID, endpoint, start)
		if err == nil && cacheEnabled && resp.StatusCode < 300 {
			ttl := cacheTTL
			if c.cacheControlTTL {
				if d := cacheControlTTL(resp.Header); d > 0 {
					ttl = d
				}
			}
			c.cache.Set(fp, &Entry{
				StatusCode: resp.StatusCode,
				Header:     resp.Header.Clone(),
				Body:       resp.Body,
			}, ttl)
			if mem, ok := c.cache.(*MemoryCache); ok {
				c.metrics.RecordCacheSize("default", mem.Len())
			}
			if c.debugEnabled() && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("response cached", "requestID", requestID, "fingerprint", fp, "ttl", ttl)
			}
		}
		return resp, err
	}

	var resp *Response
	var err error
	if cfg.dedupe && c.dedupCondition(req) {
		var shared bool
		resp, err, shared = c.dedup.run(ctx, fp, operation)
		if shared {
			c.metrics.RecordDedupHit(req.Method, endpoint)
			if c.debugEnabled() && c.debug.LogDedup && c.logger != nil {
				c.logger.Debug("joined in-flight request", "requestID", requestID, "fingerprint", fp)
			}
		}
		c.metrics.RecordDedupPending("default", c.dedup.size())
		err = c.wrapContextError(err, req, requestID, start)
	} else {
		resp, err = operation(ctx)
	}

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, c.clock.Now().Sub(start))
	if err != nil {
		c.metrics.RecordError(ErrorKind(err), req.Method, endpoint)
	}
	return resp, err
}

// dispatchWithRetry runs the attempt loop for one flight. A 401 triggers at
// most one shared token refresh and one replay, outside the retry budget.
func (c *Client) dispatchWithRetry(ctx context.Context, req Request, cfg callConfig, requestID, endpoint string, start time.Time) (*Response, error) {
	attempt := 0
	refreshed := false

	for {
		if err := c.admit(req, requestID, endpoint, attempt, start); err != nil {
			return nil, err
		}
		if attempt > 0 {
			if c.debugEnabled() && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", cfg.maxRetries)
			}
			c.metrics.RecordRetry(req.Method, endpoint, attempt)
		}

		resp, err := c.dispatchOnce(ctx, req, cfg, requestID, attempt, start)

		if c.breaker != nil {
			switch {
			case err != nil && ErrorKind(err) == KindCancelled:
				// A caller walking away says nothing about upstream health.
			case err != nil || resp.StatusCode >= 500:
				c.breaker.RecordFailure()
			default:
				c.breaker.RecordSuccess()
			}
			c.metrics.RecordCircuitBreakerState("default", c.breaker.State())
		}

		if err != nil {
			if c.retry.ShouldRetry(0, err) && attempt < cfg.maxRetries {
				if serr := c.backoffWait(ctx, attempt, nil, requestID); serr != nil {
					return nil, c.wrapContextError(serr, req, requestID, start)
				}
				attempt++
				continue
			}
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if c.auth != nil && !refreshed {
				refreshed = true
				if c.debugEnabled() && c.debug.LogAuth && c.logger != nil {
					c.logger.Debug("unauthorized response, refreshing token", "requestID", requestID)
				}
				if _, rerr := c.auth.OnUnauthorized(ctx); rerr == nil {
					c.metrics.RecordAuthRefresh("success")
					// Replay once with fresh credentials; does not consume
					// a retry attempt.
					continue
				} else {
					c.metrics.RecordAuthRefresh("failure")
					return nil, c.newError(KindAuth, "token refresh failed", rerr, req, requestID, attempt, start, http.StatusUnauthorized)
				}
			}
			return nil, c.newError(KindAuth, "request not authorized", nil, req, requestID, attempt, start, http.StatusUnauthorized)

		default:
			if c.retry.ShouldRetry(resp.StatusCode, nil) && attempt < cfg.maxRetries {
				if serr := c.backoffWait(ctx, attempt, resp.Header, requestID); serr != nil {
					return nil, c.wrapContextError(serr, req, requestID, start)
				}
				attempt++
				continue
			}
			return nil, c.newError(KindStatus, http.StatusText(resp.StatusCode), nil, req, requestID, attempt, start, resp.StatusCode)
		}
	}
}

// dispatchOnce performs a single transport exchange bounded by the
// per-attempt timeout.
func (c *Client) dispatchOnce(ctx context.Context, req Request, cfg callConfig, requestID string, attempt int, start time.Time) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	httpReq, err := req.httpRequest(attemptCtx)
	if err != nil {
		return nil, c.newError(KindValidation, "building request", err, req, requestID, attempt, start, 0)
	}

	if c.auth != nil {
		if aerr := c.auth.Attach(attemptCtx, httpReq); aerr != nil && !errors.Is(aerr, ErrNotAuthenticated) {
			return nil, c.newError(KindAuth, "attaching credentials", aerr, req, requestID, attempt, start, 0)
		}
	}

	raw, err := c.roundTrip(httpReq)
	if err != nil {
		return nil, c.classifyDispatchError(ctx, attemptCtx, err, req, requestID, attempt, start)
	}

	resp, err := drainResponse(raw)
	if err != nil {
		return nil, c.classifyDispatchError(ctx, attemptCtx, err, req, requestID, attempt, start)
	}
	return resp, nil
}

// admit applies rate limiting and circuit breaking before a dispatch.
func (c *Client) admit(req Request, requestID, endpoint string, attempt int, start time.Time) error {
	if c.rateLimiter != nil {
		if !c.rateLimiter.Allow() {
			if c.debugEnabled() && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("rate limit exceeded", "requestID", requestID, "endpoint", endpoint)
			}
			return c.newError(KindRateLimit, "rate limit exceeded", ErrRateLimited, req, requestID, attempt, start, 0)
		}
		c.metrics.RecordRateLimiterTokens("default", c.rateLimiter.Tokens())
	}
	if c.hostLimiter != nil {
		host := hostOf(req.URL)
		if !c.hostLimiter.Allow(host) {
			if c.debugEnabled() && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("rate limit exceeded", "requestID", requestID, "host", host)
			}
			return c.newError(KindRateLimit, "rate limit exceeded for host", ErrRateLimited, req, requestID, attempt, start, 0)
		}
		c.metrics.RecordRateLimiterTokens(host, c.hostLimiter.Tokens(host))
	}
	if c.breaker != nil && !c.breaker.Allow() {
		if c.debugEnabled() && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("circuit breaker open", "requestID", requestID, "endpoint", endpoint)
		}
		return c.newError(KindCircuitOpen, "circuit breaker is open", ErrCircuitOpen, req, requestID, attempt, start, 0)
	}
	return nil
}

// backoffWait sleeps for the retry delay, aborting if the flight context ends.
func (c *Client) backoffWait(ctx context.Context, attempt int, header http.Header, requestID string) error {
	delay := c.retry.retryDelay(attempt, header)
	if c.debugEnabled() && c.debug.LogRetries && c.logger != nil {
		c.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay)
	}
	return c.clock.Sleep(ctx, delay)
}

// roundTrip sends through the middleware chain down to the transport.
func (c *Client) roundTrip(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.transport.RoundTrip(req)
	}

	current := TransportFunc(c.transport.RoundTrip)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := current
		current = TransportFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		})
	}
	return current.RoundTrip(req)
}

// classifyDispatchError maps a transport failure to its error kind: deadline
// expiry is a timeout, caller cancellation is cancelled, the rest is network.
func (c *Client) classifyDispatchError(parent, attemptCtx context.Context, err error, req Request, requestID string, attempt int, start time.Time) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded:
		return c.newError(KindTimeout, "deadline exceeded before completion", err, req, requestID, attempt, start, 0)
	case errors.Is(err, context.Canceled) || parent.Err() == context.Canceled:
		return c.newError(KindCancelled, "request cancelled", err, req, requestID, attempt, start, 0)
	default:
		return c.newError(KindNetwork, "network request failed", err, req, requestID, attempt, start, 0)
	}
}

// wrapContextError converts a bare context error (from a de-dup wait or a
// backoff sleep) into the caller-facing taxonomy. RequestErrors pass through.
func (c *Client) wrapContextError(err error, req Request, requestID string, start time.Time) error {
	if err == nil {
		return nil
	}
	var re *RequestError
	if errors.As(err, &re) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return c.newError(KindTimeout, "deadline exceeded before completion", err, req, requestID, 0, start, 0)
	case errors.Is(err, context.Canceled):
		return c.newError(KindCancelled, "request cancelled", err, req, requestID, 0, start, 0)
	default:
		return err
	}
}

func (c *Client) newError(kind, message string, cause error, req Request, requestID string, attempt int, start time.Time, statusCode int) *RequestError {
	return &RequestError{
		Kind:       kind,
		Message:    message,
		Cause:      cause,
		StatusCode: statusCode,
		RequestID:  requestID,
		Method:     req.Method,
		URL:        req.URL,
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
		Timestamp:  c.clock.Now(),
		Duration:   c.clock.Now().Sub(start),
	}
}

// shouldCache decides cache eligibility: a context override wins over the
// configured cache condition; a per-call opt-out wins over both.
func (c *Client) shouldCache(ctx context.Context, req Request, cfg callConfig) bool {
	if c.cache == nil || cfg.cacheDisabled {
		return false
	}
	if cc, ok := ctx.Value(CacheControlKey).(*CacheControl); ok {
		return cc.Enabled
	}
	return c.cacheCondition(req)
}

// cacheTTLFor resolves the entry TTL: a positive context override wins over
// the per-call (or client default) TTL.
func (c *Client) cacheTTLFor(ctx context.Context, cfg callConfig) time.Duration {
	if cc, ok := ctx.Value(CacheControlKey).(*CacheControl); ok && cc.TTL > 0 {
		return cc.TTL
	}
	return cfg.cacheTTL
}

func (c *Client) resolveCall(req Request, opts []CallOption) callConfig {
	cc := callConfig{
		cacheTTL:   c.cacheTTL,
		maxRetries: c.maxRetries,
		timeout:    c.timeout,
		dedupe:     c.dedupeEnabled,
	}
	if req.Timeout > 0 {
		cc.timeout = req.Timeout
	}
	for _, opt := range opts {
		opt(&cc)
	}
	return cc
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled
}

// Get executes a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...CallOption) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodGet, URL: url}, opts...)
}

// GetJSON executes a GET request and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any, opts ...CallOption) error {
	resp, err := c.Get(ctx, url, opts...)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// Post executes a POST request with the given content type and body.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte, opts ...CallOption) (*Response, error) {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	return c.Execute(ctx, Request{Method: http.MethodPost, URL: url, Header: header, Body: body}, opts...)
}

// PostJSON executes a POST request with a JSON-encoded body and decodes the
// JSON response into out. out may be nil to discard the body.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any, opts ...CallOption) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	resp, err := c.Post(ctx, url, "application/json", body, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Login establishes the auth session through the configured token manager.
func (c *Client) Login(ctx context.Context, creds Credentials) (Token, error) {
	if c.auth == nil {
		return Token{}, ErrNotAuthenticated
	}
	return c.auth.Login(ctx, creds)
}

// Logout clears the auth session.
func (c *Client) Logout() {
	if c.auth != nil {
		c.auth.Logout()
	}
}

// Fingerprint computes the cache/de-duplication key the client would use for
// req, for manual cache control.
func (c *Client) Fingerprint(req Request) string {
	return c.fingerprint(req)
}

// InvalidateCache removes the cache entry for the given fingerprint.
func (c *Client) InvalidateCache(fingerprint string) {
	if c.cache != nil {
		c.cache.Delete(fingerprint)
	}
}

// InvalidateCacheFor removes the cache entry for the given request.
func (c *Client) InvalidateCacheFor(req Request) {
	c.InvalidateCache(c.fingerprint(req))
}

// ClearCache removes all cache entries.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
