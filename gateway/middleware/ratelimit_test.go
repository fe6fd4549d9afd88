package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"ledger": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("ledger")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterKeysByCaller(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"ledger": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("ledger")(okHandler())

	for _, last := range []byte{1, 2} {
		var caller [20]byte
		caller[19] = last
		req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
		req = req.WithContext(WithCaller(req.Context(), caller))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("caller %d should have its own bucket, got %d", last, res.Code)
		}
	}
}

func TestRateLimiterUnknownGroupPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("query")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/params", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("unlimited group throttled: %d", res.Code)
		}
	}
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"ledger": {RequestsPerMinute: 1, Burst: 1}}, nil)
	now := time.Unix(0, 0)
	limiter.clockNow = func() time.Time { return now }
	limiter.obtainLimiter("a", RateLimit{RequestsPerMinute: 1, Burst: 1})
	now = now.Add(10 * time.Minute)
	limiter.obtainLimiter("b", RateLimit{RequestsPerMinute: 1, Burst: 1})
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle limiter not evicted")
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	if got := clientID(req); got != "10.0.0.1" {
		t.Fatalf("unexpected client id %q", got)
	}
	req.Header.Set("X-Real-IP", "192.168.1.1")
	if got := clientID(req); got != "192.168.1.1" {
		t.Fatalf("unexpected client id %q", got)
	}
}
