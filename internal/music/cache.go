package music

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type statusKind string

const (
	kindCurrent  statusKind = "current"
	kindPlayback statusKind = "playback"
)

type cacheKey struct {
	playerID int64
	kind     statusKind
}

type cacheEntry struct {
	status  Status
	expires time.Time
}

const statusFetchTimeout = 10 * time.Second

// StatusCache keeps per-player backend status for a short TTL. Concurrent
// misses for the same player and kind share one backend call, which runs
// detached from any single caller's cancellation.
type StatusCache struct {
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	gen     map[int64]uint64
	group   singleflight.Group
}

func NewStatusCache(ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &StatusCache{
		ttl:     ttl,
		timeout: statusFetchTimeout,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
		gen:     make(map[int64]uint64),
	}
}

func (c *StatusCache) Get(ctx context.Context, playerID int64, kind statusKind, fetch func(context.Context) (Status, error)) (Status, error) {
	key := cacheKey{playerID: playerID, kind: kind}
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.status, nil
	}

	ch := c.group.DoChan(strconv.FormatInt(playerID, 10)+":"+string(kind), func() (interface{}, error) {
		c.mu.Lock()
		gen := c.gen[playerID]
		c.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		started := c.now()
		status, err := fetch(fetchCtx)
		if err != nil {
			return Status{}, err
		}
		finished := c.now()
		status.Timestamp = started.Add(finished.Sub(started) / 2).UTC()
		c.mu.Lock()
		// A control action landed while fetching; the result may predate it.
		if c.gen[playerID] == gen {
			c.entries[key] = cacheEntry{status: status, expires: finished.Add(c.ttl)}
		}
		c.mu.Unlock()
		return status, nil
	})
	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Status{}, res.Err
		}
		return res.Val.(Status), nil
	}
}

// Invalidate drops every cached view of the player.
func (c *StatusCache) Invalidate(playerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[playerID]++
	delete(c.entries, cacheKey{playerID: playerID, kind: kindCurrent})
	delete(c.entries, cacheKey{playerID: playerID, kind: kindPlayback})
}
