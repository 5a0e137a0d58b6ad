package storage

import (
	"context"
	"math"
	"time"
)

// Backend is the shared state store.
// Implementations must be thread-safe and every mutating method must be
// atomic with respect to concurrent callers on the same key.
type Backend interface {
	// Get returns the current value of a counter, or 0 if it does not exist
	// or has expired.
	Get(ctx context.Context, key string) (int64, error)

	// Incr atomically increments a counter and returns the new value.
	// The expiry is set together with the first increment of a new key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// IncrIfBelow atomically increments a counter only if its current value
	// is below limit. It returns the resulting value and whether the
	// increment happened.
	IncrIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error)

	// Decr atomically decrements a counter, never going below zero.
	// Missing keys are left untouched.
	Decr(ctx context.Context, key string) (int64, error)

	// Delete removes a counter. No-op if it does not exist.
	Delete(ctx context.Context, key string) error

	// TakeToken refills the bucket stored at key for the time elapsed up to
	// now and takes one token if available, in one atomic step.
	TakeToken(ctx context.Context, key string, params BucketParams, now time.Time) (BucketResult, error)

	// PeekTokens returns the tokens the bucket would hold at now without
	// modifying it.
	PeekTokens(ctx context.Context, key string, params BucketParams, now time.Time) (float64, error)

	// Cleanup removes expired entries and returns how many were deleted.
	// Backends with native expiry return 0.
	Cleanup(ctx context.Context, now time.Time) (int, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// BucketParams configures a token bucket.
type BucketParams struct {
	// Capacity is the maximum number of tokens (burst size).
	Capacity float64

	// RefillRate is the number of tokens added per second.
	RefillRate float64
}

// IdleTTL is how long an untouched bucket is kept. Once it would be full
// again its state carries no information, so it may expire.
func (p BucketParams) IdleTTL() time.Duration {
	if p.RefillRate <= 0 {
		return time.Hour
	}
	full := time.Duration(p.Capacity / p.RefillRate * float64(time.Second))
	return full + time.Minute
}

// BucketResult is the outcome of TakeToken.
type BucketResult struct {
	// Granted is true when a token was taken.
	Granted bool

	// Tokens is the number of tokens left after the operation.
	Tokens float64

	// RetryAfter is the time until the next token becomes available.
	// Zero when Granted is true.
	RetryAfter time.Duration
}

// bucketState is the persisted state of one token bucket.
type bucketState struct {
	Tokens     float64
	LastRefill time.Time
}

// refill advances the bucket to now. Elapsed time is clamped at zero so a
// caller with a lagging clock never drains tokens or rewinds last refill.
func (s bucketState) refill(params BucketParams, now time.Time) bucketState {
	elapsed := now.Sub(s.LastRefill).Seconds()
	if elapsed <= 0 {
		return s
	}
	return bucketState{
		Tokens:     math.Min(params.Capacity, s.Tokens+elapsed*params.RefillRate),
		LastRefill: now,
	}
}

// take applies one acquisition to a refilled state.
func (s bucketState) take(params BucketParams) (bucketState, BucketResult) {
	if s.Tokens >= 1 {
		s.Tokens--
		return s, BucketResult{Granted: true, Tokens: s.Tokens}
	}

	var wait time.Duration
	if params.RefillRate > 0 {
		wait = time.Duration(math.Ceil((1 - s.Tokens) / params.RefillRate * 1000)) * time.Millisecond
	}
	return s, BucketResult{Tokens: s.Tokens, RetryAfter: wait}
}

// fullBucket returns the state of a bucket seen for the first time.
func fullBucket(params BucketParams, now time.Time) bucketState {
	return bucketState{Tokens: params.Capacity, LastRefill: now}
}
