package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func requestFrom(e *echo.Echo, ip string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		c, rec := requestFrom(e, "10.0.0.1")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	frozen := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }
	handler := rateLimit(store)(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := requestFrom(e, "10.0.0.1")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	c, rec := requestFrom(e, "10.0.0.1")
	err := handler(c)
	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	e := echo.New()
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	handler := rateLimit(store)(okHandler)

	c, _ := requestFrom(e, "10.0.0.1")
	if err := handler(c); err != nil {
		t.Fatalf("first request: %v", err)
	}
	c, _ = requestFrom(e, "10.0.0.1")
	if err := handler(c); err == nil {
		t.Fatal("expected second immediate request to be limited")
	}

	now = now.Add(1100 * time.Millisecond)
	c, _ = requestFrom(e, "10.0.0.1")
	if err := handler(c); err != nil {
		t.Fatalf("expected request after refill to pass, got %v", err)
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	e := echo.New()
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	frozen := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }
	handler := rateLimit(store)(okHandler)

	c, _ := requestFrom(e, "10.0.0.1")
	if err := handler(c); err != nil {
		t.Fatalf("client A: %v", err)
	}
	c, _ = requestFrom(e, "10.0.0.2")
	if err := handler(c); err != nil {
		t.Fatalf("client B should have its own bucket, got %v", err)
	}
}

func TestRateLimit_EvictsIdleClients(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.get("a")
	store.get("b")
	if store.size() != 2 {
		t.Fatalf("expected 2 limiters, got %d", store.size())
	}

	now = now.Add(2 * time.Minute)
	store.get("c")
	if store.size() != 1 {
		t.Errorf("expected idle limiters to be evicted, got %d", store.size())
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 || cfg.IdleTTL <= 0 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
