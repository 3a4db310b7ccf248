package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket is a lazily-refilled token bucket with float64 token
// accumulation. It backs the per-user tier, where the retry-after hint
// needs the post-refill fractional token count on a failed consume —
// something golang.org/x/time/rate doesn't expose, which is why this
// tier keeps a hand-rolled bucket instead of the library's Limiter the
// other two tiers use.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// tryConsume refills based on elapsed monotonic time, then attempts to
// consume one token. Returns whether the request is allowed and, when
// it is not, how long until exactly one token will be available.
func (tb *tokenBucket) tryConsume(now time.Time) (allowed bool, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.refillRate
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens -= 1
		return true, 0
	}

	deficit := 1 - tb.tokens
	seconds := deficit / tb.refillRate
	return false, time.Duration(ceilSeconds(seconds)) * time.Second
}

func ceilSeconds(s float64) int64 {
	n := int64(s)
	if float64(n) < s {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
