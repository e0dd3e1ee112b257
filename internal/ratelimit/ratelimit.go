package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether another request for key fits in the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type RateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	tokensToAdd := int(elapsed / rl.refillRate)

	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(tokensToAdd) * rl.refillRate)
	}
}

func (rl *RateLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Local keeps one token bucket per key in process memory. Used when Redis is
// not configured; limits are then per instance.
type Local struct {
	perMinute int
	mu        sync.Mutex
	buckets   map[string]*RateLimiter
}

func NewLocal(perMinute int) *Local {
	return &Local{
		perMinute: perMinute,
		buckets:   make(map[string]*RateLimiter),
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	if l.perMinute <= 0 {
		return true, nil
	}

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = NewRateLimiter(l.perMinute, time.Minute/time.Duration(l.perMinute))
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow(), nil
}

// Sweep drops buckets that have refilled completely.
func (l *Local) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, bucket := range l.buckets {
		if bucket.Remaining() >= l.perMinute {
			delete(l.buckets, key)
		}
	}
}
