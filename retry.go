package tangguh

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prasetya-adi/tangguh/internal/backoff"
)

// BackoffStrategy selects the delay growth algorithm.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays as base * multiplier^attempt with
	// uniform jitter. The default.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter draws each delay from [base, base*3^attempt].
	DecorrelatedJitter
)

// RetryPolicy decides whether a failed attempt should be retried and how long
// to wait before the next one. It holds no mutable state; the attempt count
// lives with the call, which keeps the policy a pure, testable decision
// function. The maximum attempt bound is enforced by the Client.
type RetryPolicy struct {
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration
	// Multiplier is the exponential growth factor (2 by default).
	Multiplier float64
	// Jitter in [0,1] adds up to that fraction of random extra delay.
	Jitter float64
	// RetryOn429 additionally retries 429 responses, honouring Retry-After.
	// Off by default: client-error codes are otherwise never retried.
	RetryOn429 bool

	strategy backoff.Strategy
}

// DefaultRetryPolicy returns the policy used when none is configured:
// 100ms initial delay, 10s cap, doubling, 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		strategy:       backoff.Exponential{},
	}
}

// WithStrategy returns a copy of the policy using the given delay strategy.
func (p RetryPolicy) WithStrategy(s BackoffStrategy) RetryPolicy {
	switch s {
	case DecorrelatedJitter:
		p.strategy = backoff.Decorrelated{}
	default:
		p.strategy = backoff.Exponential{}
	}
	return p
}

// ShouldRetry reports whether the outcome of one attempt is worth retrying.
// Transport-level failures and 5xx responses are; client errors, timeouts and
// cancellations are not. statusCode is 0 when the attempt failed before a
// response arrived, in which case err carries the classified failure.
func (p RetryPolicy) ShouldRetry(statusCode int, err error) bool {
	if err != nil {
		switch ErrorKind(err) {
		case KindTimeout, KindCancelled, KindAuth, KindDecode:
			return false
		case KindNetwork:
			return true
		}
		return false
	}
	if statusCode >= 500 {
		return true
	}
	if statusCode == 429 {
		return p.RetryOn429
	}
	return false
}

// DelayFor computes the delay before the retry following attempt (0-based):
// with zero jitter, DelayFor(0) == InitialBackoff, DelayFor(1) == 2x, and so
// on up to MaxBackoff.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	s := p.strategy
	if s == nil {
		s = backoff.Exponential{}
	}
	return s.Delay(attempt, p.InitialBackoff, p.MaxBackoff, p.Multiplier, p.Jitter)
}

// retryDelay resolves the wait before the next attempt, preferring a usable
// Retry-After header over the computed backoff.
func (p RetryPolicy) retryDelay(attempt int, header http.Header) time.Duration {
	if header != nil {
		if d := parseRetryAfter(header.Get("Retry-After")); d > 0 {
			return d
		}
	}
	return p.DelayFor(attempt)
}

// parseRetryAfter supports both delay-seconds and HTTP-date forms, capped at
// one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}
	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}
	return 0
}
