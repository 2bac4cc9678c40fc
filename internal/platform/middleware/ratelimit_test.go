package middleware

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/homerev/api/internal/platform/auth"
)

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)
	for i := 0; i < 5; i++ {
		c, rec := newTestContext(http.MethodPost, "/graphql")
		if err := h(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)
	for i := 0; i < 2; i++ {
		c, _ := newTestContext(http.MethodPost, "/graphql")
		h(c)
	}

	c, rec := newTestContext(http.MethodPost, "/graphql")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "RATE_LIMITED" {
		t.Errorf("expected RATE_LIMITED, got %s", code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_PerPrincipalIsolation(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	c, rec := newTestContext(http.MethodPost, "/graphql", withPrincipal("P1", auth.RolePatient))
	h(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("P1 first request: expected 200, got %d", rec.Code)
	}
	c, rec = newTestContext(http.MethodPost, "/graphql", withPrincipal("P1", auth.RolePatient))
	h(c)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("P1 second request: expected 429, got %d", rec.Code)
	}
	// Same address, different principal.
	c, rec = newTestContext(http.MethodPost, "/graphql", withPrincipal("P2", auth.RolePatient))
	h(c)
	if rec.Code != http.StatusOK {
		t.Errorf("P2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimitKey(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/", withPrincipal("T1", auth.RoleTherapist))
	if got := rateLimitKey(c); got != "principal:T1" {
		t.Errorf("expected principal key, got %s", got)
	}
	c, _ = newTestContext(http.MethodGet, "/", func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1234" })
	if got := rateLimitKey(c); got != "ip:10.0.0.1" {
		t.Errorf("expected ip key, got %s", got)
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	start := time.Unix(0, 0)
	b := newTokenBucket(2, 1, start)
	if !b.allow(start) {
		t.Fatal("expected first token")
	}
	if b.allow(start) {
		t.Fatal("expected bucket to be empty")
	}
	if !b.allow(start.Add(600 * time.Millisecond)) {
		t.Error("expected a token after refill")
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	b := newTokenBucket(0, 1, time.Now())
	if got := b.retryAfter(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestRateLimiterStore_EvictsIdleBuckets(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	s.now = func() time.Time { return now }
	s.lastSweep = now

	s.bucket("a")
	now = now.Add(2 * time.Minute)
	s.bucket("b")

	if _, ok := s.buckets["a"]; ok {
		t.Error("expected idle bucket to be evicted")
	}
	if _, ok := s.buckets["b"]; !ok {
		t.Error("expected fresh bucket to be kept")
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
