// Package limiter enforces the per-key fixed-window rate limit.
package limiter

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimitExceeded is returned when the post-increment counter value is
// above the configured threshold.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Counter is the slice of the store gateway the limiter needs.
type Counter interface {
	IncrRate(ctx context.Context, projectID, keyID string, minute int64, ttl time.Duration) (int64, error)
}

// Limiter admits or denies one validation per call. Windows are fixed
// per-minute buckets; the counter key carries the window's minute timestamp
// and evaporates via TTL, so no sweeper is needed.
type Limiter struct {
	counter   Counter
	threshold int64
	ttl       time.Duration
	now       func() time.Time
}

func New(counter Counter, requestsPerMinute int, ttl time.Duration) *Limiter {
	return &Limiter{
		counter:   counter,
		threshold: int64(requestsPerMinute),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Allow increments the current window's counter and checks the result.
// Returns nil on admission, ErrRateLimitExceeded on denial, or a store error
// untouched. Concurrent callers may race the increment; the post-increment
// check stays deterministic because the store serializes it.
func (l *Limiter) Allow(ctx context.Context, projectID, keyID string) error {
	minute := l.now().Unix() / 60
	count, err := l.counter.IncrRate(ctx, projectID, keyID, minute, l.ttl)
	if err != nil {
		return err
	}
	if count > l.threshold {
		return ErrRateLimitExceeded
	}
	return nil
}
