package music

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SearchLimiter keeps one token bucket per user.
type SearchLimiter struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	limiters map[int64]*rate.Limiter
}

func NewSearchLimiter(interval time.Duration, burst int) *SearchLimiter {
	if interval <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &SearchLimiter{every: rate.Every(interval), burst: burst, limiters: make(map[int64]*rate.Limiter)}
}

func (l *SearchLimiter) Allow(userID int64) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

type requestKey struct {
	playerID int64
	userID   int64
}

type requestLock struct {
	mu      sync.Mutex
	holders int
}

// requestLocks serializes quota checks per player and user.
type requestLocks struct {
	mu    sync.Mutex
	locks map[requestKey]*requestLock
}

func newRequestLocks() *requestLocks {
	return &requestLocks{locks: make(map[requestKey]*requestLock)}
}

func (l *requestLocks) lock(playerID, userID int64) func() {
	key := requestKey{playerID: playerID, userID: userID}
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &requestLock{}
		l.locks[key] = entry
	}
	entry.holders++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.holders--
		if entry.holders == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
