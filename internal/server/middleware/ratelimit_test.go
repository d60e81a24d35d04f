package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	key     string
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.key = key
	return f.allowed, f.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimitKeyHasSingleNamespace(t *testing.T) {
	// The redis limiter prefixes keys with "ratelimit:" itself; the
	// middleware must only add the API scope, not repeat the namespace.
	lim := &fakeLimiter{allowed: true}
	h := RateLimit(lim, 5, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/round", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if lim.key != "api:203.0.113.9" {
		t.Errorf("limiter key = %q, want %q", lim.key, "api:203.0.113.9")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	lim := &fakeLimiter{allowed: false}
	h := RateLimit(lim, 1, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/round", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	lim := &fakeLimiter{err: errors.New("redis down")}
	h := RateLimit(lim, 1, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/round", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 (fail open)", rr.Code)
	}
}

func TestExtractClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	if ip := extractClientIP(req); ip != "198.51.100.7" {
		t.Errorf("ip = %q, want 198.51.100.7", ip)
	}
}
