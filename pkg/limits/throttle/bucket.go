package throttle

import (
	"math"
	"sync"
	"time"
)

// TokenBucket is the in-process bucket used while the shared store is
// unreachable.
//
// Tokens are fractional so that a refill rate below one token per second
// still accumulates between calls. Refill happens on access, clamped to
// capacity, and elapsed time is clamped at zero so a clock that steps
// backwards never removes tokens.
//
// TokenBucket is safe for concurrent use.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	clock      func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket. A nil clock uses time.Now.
//
// Example:
//
//	// burst of 5, 2 tokens per second sustained
//	bucket := NewTokenBucket(5, 2, nil)
func NewTokenBucket(capacity, refillRate float64, clock func() time.Time) *TokenBucket {
	if clock == nil {
		clock = time.Now
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: clock(),
		clock:      clock,
	}
}

// Take consumes one token. When none is available it returns false and the
// time until one will be.
func (tb *TokenBucket) Take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	return false, tb.waitLocked()
}

// Available returns the tokens currently in the bucket.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return tb.tokens
}

// Capacity returns the maximum bucket size.
func (tb *TokenBucket) Capacity() float64 {
	return tb.capacity
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.clock()
}

// waitLocked returns the time until one full token is available, rounded up
// to the millisecond. Caller must hold lock.
func (tb *TokenBucket) waitLocked() time.Duration {
	if tb.refillRate <= 0 {
		return math.MaxInt64
	}
	ms := math.Ceil((1 - tb.tokens) / tb.refillRate * 1000)
	return time.Duration(ms) * time.Millisecond
}

// refillLocked adds tokens for the time elapsed since the last refill.
// Caller must hold lock.
func (tb *TokenBucket) refillLocked() {
	now := tb.clock()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}
