package resolver

import (
	"sync"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// originLimiter is the production RateLimiter: one token bucket per
// origin IP, refilling at limit/window and capped at burst = limit, so
// a quiet origin can never bank more than one window's worth of
// queries (spec.md §4.8 "Rate limiting").
type originLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenbucket.TokenBucket
	rate    tokenbucket.Rate
	burst   tokenbucket.Tokens
	now     Clock
}

// NewOriginLimiter builds a RateLimiter allowing limit queries per
// window, per origin.
func NewOriginLimiter(limit int, window time.Duration, now Clock) RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &originLimiter{
		buckets: make(map[string]*tokenbucket.TokenBucket),
		rate:    tokenbucket.Rate(float64(limit) / window.Seconds()),
		burst:   tokenbucket.Tokens(limit),
		now:     now,
	}
}

func (l *originLimiter) Allow(origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	tb, ok := l.buckets[origin]
	if !ok {
		tb = &tokenbucket.TokenBucket{}
		tb.Init(l.rate, l.burst, l.now())
		l.buckets[origin] = tb
	}
	fulfilled, _ := tb.TryToFulfill(l.now(), 1)
	return fulfilled
}
