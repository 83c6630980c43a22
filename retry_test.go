package tangguh

import (
	"net/http"
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		name       string
		statusCode int
		err        error
		want       bool
	}{
		{"500", http.StatusInternalServerError, nil, true},
		{"502", http.StatusBadGateway, nil, true},
		{"503", http.StatusServiceUnavailable, nil, true},
		{"404", http.StatusNotFound, nil, false},
		{"400", http.StatusBadRequest, nil, false},
		{"429 off by default", http.StatusTooManyRequests, nil, false},
		{"network error", 0, &RequestError{Kind: KindNetwork}, true},
		{"timeout", 0, &RequestError{Kind: KindTimeout}, false},
		{"cancelled", 0, &RequestError{Kind: KindCancelled}, false},
		{"auth", 0, &RequestError{Kind: KindAuth}, false},
		{"decode", 0, &RequestError{Kind: KindDecode}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tt.statusCode, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.statusCode, tt.err, got, tt.want)
			}
		})
	}
}

func TestShouldRetry429OptIn(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.RetryOn429 = true
	if !policy.ShouldRetry(http.StatusTooManyRequests, nil) {
		t.Error("ShouldRetry(429) = false with RetryOn429, want true")
	}
}

func TestDelayForGrowth(t *testing.T) {
	policy := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0,
	}

	wants := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, want := range wants {
		if got := policy.DelayFor(attempt); got != want {
			t.Errorf("DelayFor(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestDelayForCapped(t *testing.T) {
	policy := RetryPolicy{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0,
	}
	if got := policy.DelayFor(10); got != 5*time.Second {
		t.Errorf("DelayFor(10) = %v, want cap of 5s", got)
	}
}

func TestDelayForJitterBounds(t *testing.T) {
	policy := RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.5,
	}
	for i := 0; i < 100; i++ {
		got := policy.DelayFor(1)
		if got < 200*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("DelayFor(1) = %v, want within [200ms, 300ms]", got)
		}
	}
}

func TestRetryDelayPrefersRetryAfter(t *testing.T) {
	policy := DefaultRetryPolicy()

	header := http.Header{}
	header.Set("Retry-After", "3")
	if got := policy.retryDelay(0, header); got != 3*time.Second {
		t.Errorf("retryDelay = %v, want 3s from Retry-After", got)
	}

	// Without a usable header the computed backoff applies.
	if got := policy.retryDelay(0, http.Header{}); got < policy.InitialBackoff {
		t.Errorf("retryDelay = %v, want at least %v", got, policy.InitialBackoff)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"negative", "-1", 0},
		{"garbage", "soon", 0},
		{"empty", "", 0},
		{"capped at an hour", "7200", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	value := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(value)
	if got <= 0 || got > 31*time.Second {
		t.Errorf("parseRetryAfter(%q) = %v, want roughly 30s", value, got)
	}
}
