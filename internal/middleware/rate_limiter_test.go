package middleware

import (
	"testing"
	"time"
)

func TestIPRateLimiterAllowsWithinBurst(t *testing.T) {
	limiter := NewIPRateLimiter(2, time.Minute, 2, time.Minute)

	for i := 0; i < 2; i++ {
		if !limiter.Allow("a") {
			t.Fatalf("expected request %d within burst to pass", i)
		}
	}
	if limiter.Allow("a") {
		t.Fatal("expected request beyond burst to be rejected")
	}
}

func TestIPRateLimiterIsolatesKeys(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 1, time.Minute)

	if !limiter.Allow("a") {
		t.Fatal("expected first request for key a to pass")
	}
	if !limiter.Allow("b") {
		t.Fatal("expected first request for key b to pass")
	}
	if limiter.Allow("a") {
		t.Fatal("expected second request for key a to be rejected")
	}
}

func TestIPRateLimiterExpiresIdleVisitors(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 1, time.Minute).(*ipRateLimiter)

	current := time.Now()
	limiter.WithNowFunc(func() time.Time { return current })

	if !limiter.Allow("a") {
		t.Fatal("expected first request to pass")
	}
	if limiter.Allow("a") {
		t.Fatal("expected second request to be rejected")
	}

	// After the ttl the visitor entry is dropped and the counter resets.
	current = current.Add(2 * time.Minute)
	if !limiter.Allow("b") {
		t.Fatal("expected request for key b to pass")
	}
	if !limiter.Allow("a") {
		t.Fatal("expected key a to start fresh after expiry")
	}
}

func TestIPRateLimiterNormalizesEmptyKey(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 1, time.Minute)

	if !limiter.Allow("") {
		t.Fatal("expected first request with empty key to pass")
	}
	if limiter.Allow("unknown") {
		t.Fatal("expected empty key to share the unknown bucket")
	}
}
