package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket guarding outbound API calls. One token
// is added every refillInterval up to burst.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	burst      int
	interval   time.Duration
	lastRefill time.Time
}

func NewRateLimiter(burst int, interval time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		tokens:     burst,
		burst:      burst,
		interval:   interval,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available without blocking.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillLocked(time.Now())
	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

func (r *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(r.lastRefill)
	if elapsed < r.interval {
		return
	}
	added := int(elapsed / r.interval)
	r.tokens += added
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
	r.lastRefill = r.lastRefill.Add(time.Duration(added) * r.interval)
}
