package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tosti/internal/models"
)

func TestRateLimiterByIP(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2, UserPerMinute: 1000, UserBurst: 1000})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/shifts", nil)
		req.RemoteAddr = "10.1.2.3:5000"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/shifts", nil)
	req.RemoteAddr = "10.9.9.9:5000"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("other client throttled: %d", resp.Code)
	}
}

func TestRateLimiterByUser(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1000, IPBurst: 1000, UserPerMinute: 1, UserBurst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(user models.User, addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/shifts", nil)
		req.RemoteAddr = addr
		req = req.WithContext(context.WithValue(req.Context(), userContextKey{}, user))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send(testUser, "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := send(testUser, "10.0.0.2:1"); code != http.StatusTooManyRequests {
		t.Fatalf("user limit not applied across addresses: %d", code)
	}
	if code := send(models.User{}, "10.0.0.3:1"); code != http.StatusOK {
		t.Fatalf("anonymous request throttled: %d", code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP=%q", got)
	}
}
