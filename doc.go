// Package tangguh provides a resilient HTTP request client built from
// cooperating reliability primitives:
//
//   - Retries with exponential backoff + jitter (stateless decision functions)
//   - Response caching with per-entry TTL, lazily evicted on read
//   - In-flight de-duplication (concurrent identical requests share one dispatch)
//   - Auth token management with single-flight refresh on 401
//   - Circuit breaker (open / half-open / closed states)
//   - Rate limiting (token bucket, optionally keyed per host)
//   - Middleware chain for cross-cutting concerns
//   - Prometheus metrics and pluggable structured logging
//
// Design goals:
//   - Small surface area: one Execute entry point, functional options for the rest
//   - Distinct, inspectable failure kinds (network / timeout / cancelled /
//     status / authorization / decode) so callers decide their own policy
//   - Safe concurrent use of a single *Client instance
//   - Injected collaborators (Transport, Cache, CredentialStore, Clock) for
//     deterministic testing
//
// Typical usage:
//
//	client := tangguh.New(
//	    tangguh.WithMaxRetries(3),
//	    tangguh.WithCache(5*time.Minute),
//	    tangguh.WithRateLimiter(10, time.Second),
//	)
//	resp, err := client.Execute(ctx, tangguh.Request{Method: "GET", URL: "https://api.example.com/data"})
//
// De-duplication is on by default for safe methods; disable per call with
// WithCallNoDedupe. The library stays silent unless a Logger is provided.
package tangguh
