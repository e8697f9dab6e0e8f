// Package ratelimit provides a per-key token bucket. Transaction creation
// uses a bucket of capacity 5 refilled at 5 tokens per minute per user;
// recurring-transaction posting uses a 10-per-minute bucket per user.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of a quota check. On deny, RetryAfter is how long
// until a token becomes available.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a set of token buckets keyed by an arbitrary string, typically
// a user identity. Buckets are created lazily and share one configuration.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a limiter that refills `refill` tokens every `per` with
// bucket capacity `capacity`.
func New(refill int, per time.Duration, capacity int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(refill) / per.Seconds()),
		burst:   capacity,
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow consumes one token from key's bucket if available. It never blocks;
// a denied decision reports when to retry.
func (l *Limiter) Allow(key string) Decision {
	b := l.bucket(key)
	r := b.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return Decision{Allowed: false, Remaining: 0, RetryAfter: delay}
	}
	return Decision{Allowed: true, Remaining: int(b.Tokens())}
}

// Wait blocks until a token is available for key or ctx is done. Used to
// throttle background posting rather than reject it.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}
