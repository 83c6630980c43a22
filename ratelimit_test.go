package tangguh

import (
	"testing"
	"time"
)

func TestRateLimiterExhaustion(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i)
		}
	}
	if rl.Allow() {
		t.Error("Allow() = true on empty bucket, want false")
	}
	if got := rl.Tokens(); got != 0 {
		t.Errorf("Tokens() = %d, want 0", got)
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2, 5*time.Millisecond)

	rl.Allow()
	rl.Allow()
	if rl.Allow() {
		t.Fatal("Allow() = true on empty bucket, want false")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.Allow() {
		t.Error("Allow() = false after refill interval, want true")
	}
}

func TestRateLimiterRefillCapped(t *testing.T) {
	rl := NewRateLimiter(2, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	rl.Allow()
	if got := rl.Tokens(); got > 2 {
		t.Errorf("Tokens() = %d, want at most the bucket capacity", got)
	}
}

func TestHostRateLimiterIsolation(t *testing.T) {
	h := NewHostRateLimiter(1, time.Hour)

	if !h.Allow("a.test") {
		t.Fatal("Allow(a.test) = false, want true")
	}
	if h.Allow("a.test") {
		t.Error("Allow(a.test) = true on empty bucket, want false")
	}
	// A drained bucket for one host must not affect another.
	if !h.Allow("b.test") {
		t.Error("Allow(b.test) = false, want true")
	}
}

func TestHostRateLimiterTokens(t *testing.T) {
	h := NewHostRateLimiter(5, time.Hour)

	if got := h.Tokens("untouched.test"); got != 5 {
		t.Errorf("Tokens(untouched) = %d, want full bucket", got)
	}
	h.Allow("used.test")
	if got := h.Tokens("used.test"); got != 4 {
		t.Errorf("Tokens(used) = %d, want 4", got)
	}
}
