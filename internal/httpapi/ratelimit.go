package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute   int
	IPBurst       int
	UserPerMinute int
	UserBurst     int
}

// RateLimiter throttles by client IP and, for signed-in callers, by user.
// It must run after AuthMiddleware.
type RateLimiter struct {
	ipLimiter   *keyedLimiter
	userLimiter *keyedLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:   newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst),
		userLimiter: newKeyedLimiter(cfg.UserPerMinute, cfg.UserBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if user := userFromContext(r.Context()); user.Authenticated() &&
			!l.userLimiter.allow(strconv.FormatInt(user.ID, 10)) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyedLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
