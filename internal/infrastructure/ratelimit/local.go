package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// LocalLimiter is a per-owner token bucket for single-instance deployments
// without Redis. Limiters idle for longer than ttl are dropped.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*entry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows limit placements per window with bursts up to limit.
func NewLocalLimiter(limit int64, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	return &LocalLimiter{
		limiters: make(map[uuid.UUID]*entry),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    int(limit),
		ttl:      10 * window,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, ownerID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	current, found := l.limiters[ownerID]
	if !found {
		current = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ownerID] = current
	}
	current.lastSeen = now

	return current.limiter.AllowN(now, 1), nil
}

func (l *LocalLimiter) evict(now time.Time) {
	for owner, current := range l.limiters {
		if now.Sub(current.lastSeen) > l.ttl {
			delete(l.limiters, owner)
		}
	}
}
