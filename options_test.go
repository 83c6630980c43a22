package tangguh

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prasetya-adi/tangguh/internal/backoff"
)

func TestValidateConfigurationDefaults(t *testing.T) {
	client := New()
	if err := client.ValidateConfiguration(); err != nil {
		t.Errorf("ValidateConfiguration() on defaults = %v, want nil", err)
	}
}

func TestValidateConfigurationFailures(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		field string
	}{
		{"nil transport", WithTransport(nil), "Transport"},
		{"negative timeout", WithTimeout(-time.Second), "Timeout"},
		{"negative retries", WithMaxRetries(-1), "MaxRetries"},
		{"zero initial backoff", WithInitialBackoff(0), "InitialBackoff"},
		{"max below initial", WithMaxBackoff(time.Millisecond), "MaxBackoff"},
		{"multiplier below one", WithBackoffMultiplier(0.5), "BackoffMultiplier"},
		{"jitter above one", WithJitter(1.5), "Jitter"},
		{"nil fingerprint", WithFingerprintFunc(nil), "FingerprintFunc"},
		{"nil clock", WithClock(nil), "Clock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.opt)
			err := client.ValidationError()
			if err == nil {
				t.Fatal("ValidationError() = nil, want failure")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestValidateConfigurationJoinsAll(t *testing.T) {
	client := New(WithTimeout(-1), WithMaxRetries(-1), WithJitter(9))
	err := client.ValidationError()
	if err == nil {
		t.Fatal("ValidationError() = nil, want failures")
	}
	msg := err.Error()
	for _, field := range []string{"Timeout", "MaxRetries", "Jitter"} {
		if !strings.Contains(msg, field) {
			t.Errorf("error %q missing field %s", msg, field)
		}
	}
}

func TestWithRetryPolicyKeepsStrategy(t *testing.T) {
	policy := DefaultRetryPolicy().WithStrategy(DecorrelatedJitter)
	client := New(WithRetryPolicy(policy))

	if _, ok := client.retry.strategy.(backoff.Decorrelated); !ok {
		t.Errorf("strategy = %T, want backoff.Decorrelated preserved", client.retry.strategy)
	}
}

func TestOptionsApply(t *testing.T) {
	cache := NewMemoryCache()
	clock := newFakeClock()
	client := New(
		WithTimeout(5*time.Second),
		WithMaxRetries(7),
		WithCacheBackend(cache, time.Minute),
		WithCacheControlTTL(),
		WithoutDeduplication(),
		WithBackoffStrategy(DecorrelatedJitter),
		WithClock(clock),
	)

	if client.timeout != 5*time.Second {
		t.Errorf("timeout = %v", client.timeout)
	}
	if client.maxRetries != 7 {
		t.Errorf("maxRetries = %d", client.maxRetries)
	}
	if client.cache != cache {
		t.Error("cache backend not applied")
	}
	if !client.cacheControlTTL {
		t.Error("cacheControlTTL not applied")
	}
	if client.dedupeEnabled {
		t.Error("dedupeEnabled = true, want false")
	}
	if client.clock != clock {
		t.Error("clock not applied")
	}
}
