// Package backoff holds the delay calculation strategies used by the retry
// policy. Strategies are pure: the same inputs always produce delays from the
// same distribution, and a zero jitter factor makes them fully deterministic.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before the retry following the given attempt.
// Attempt numbering is 0-based: attempt 0 yields the delay before the first
// retry.
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential grows the delay as base * multiplier^attempt, capped at max,
// with optional uniform jitter added on top.
type Exponential struct{}

func (Exponential) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Bound the exponent so the float product cannot overflow the duration.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(base) * Pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

// Decorrelated implements decorrelated jitter: each delay is drawn uniformly
// from [base, min(max, base*3^attempt)]. It trades determinism for smoother
// tail latency under contention.
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lower := float64(base)
	upper := lower * Pow(3.0, attempt)

	maxFloat := float64(max)
	if upper > maxFloat || upper < 0 {
		upper = maxFloat
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow computes base^exponent by repeated multiplication, matching the delay
// arithmetic exactly for non-negative integer exponents.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
