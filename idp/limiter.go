package idp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits OTP sends per key (the phone number).
type RateLimiter interface {
	Allow(key string) bool
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key. Idle buckets are pruned.
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*limiterEntry
}

// NewKeyedLimiter allows burst sends immediately and then one per interval.
func NewKeyedLimiter(interval time.Duration, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:    rate.Every(interval),
		burst:    burst,
		idle:     time.Hour,
		limiters: make(map[string]*limiterEntry),
	}
}

func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	e, ok := k.limiters[key]
	if !ok {
		if len(k.limiters) > 10000 {
			k.pruneLocked(now)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (k *KeyedLimiter) pruneLocked(now time.Time) {
	for key, e := range k.limiters {
		if now.Sub(e.lastSeen) > k.idle {
			delete(k.limiters, key)
		}
	}
}
