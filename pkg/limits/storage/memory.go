package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

var errBackendClosed = errors.New("backend closed")

// MemoryBackend implements Backend in process memory.
// It provides the same per-key atomicity as the shared backends but only
// within a single process, so it is suitable for tests, development and
// single-instance deployments.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.Mutex.
type MemoryBackend struct {
	counters map[string]*counterEntry
	buckets  map[string]*bucketEntry

	// mu protects access to both maps.
	mu sync.Mutex

	clock           func() time.Time
	cleanupInterval time.Duration
	closed          bool

	// done signals the cleanup goroutine to stop.
	done      chan struct{}
	closeOnce sync.Once
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

type bucketEntry struct {
	state     bucketState
	expiresAt time.Time
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// CleanupInterval is how often to sweep expired entries.
	// Zero disables the background sweep.
	// Default: 1 minute
	CleanupInterval time.Duration

	// Clock returns the current time. Used for expiry only.
	// Default: time.Now
	Clock func() time.Time
}

// NewMemoryBackend creates a new in-memory backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{
		CleanupInterval: time.Minute,
	})
}

// NewMemoryBackendWithConfig creates a new in-memory backend with custom configuration.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	backend := &MemoryBackend{
		counters:        make(map[string]*counterEntry),
		buckets:         make(map[string]*bucketEntry),
		clock:           cfg.Clock,
		cleanupInterval: cfg.CleanupInterval,
		done:            make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go backend.cleanupLoop()
	}

	return backend
}

// Get returns the current value of a counter.
func (m *MemoryBackend) Get(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, &limits.StoreError{Op: "get", Key: key, Err: errBackendClosed}
	}

	if e := m.liveCounterLocked(key); e != nil {
		return e.value, nil
	}
	return 0, nil
}

// Incr atomically increments a counter, setting its expiry on creation.
func (m *MemoryBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, &limits.StoreError{Op: "incr", Key: key, Err: errBackendClosed}
	}

	return m.incrLocked(key, ttl), nil
}

// IncrIfBelow increments a counter only while it is below limit.
func (m *MemoryBackend) IncrIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, false, &limits.StoreError{Op: "incr_if_below", Key: key, Err: errBackendClosed}
	}

	if e := m.liveCounterLocked(key); e != nil && e.value >= limit {
		return e.value, false, nil
	}
	return m.incrLocked(key, ttl), true, nil
}

// Decr decrements a counter with a floor of zero.
func (m *MemoryBackend) Decr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, &limits.StoreError{Op: "decr", Key: key, Err: errBackendClosed}
	}

	e := m.liveCounterLocked(key)
	if e == nil {
		return 0, nil
	}
	if e.value > 0 {
		e.value--
	}
	return e.value, nil
}

// Delete removes a counter.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &limits.StoreError{Op: "delete", Key: key, Err: errBackendClosed}
	}

	delete(m.counters, key)
	return nil
}

// TakeToken refills and takes from the bucket at key.
func (m *MemoryBackend) TakeToken(ctx context.Context, key string, params BucketParams, now time.Time) (BucketResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return BucketResult{}, &limits.StoreError{Op: "take_token", Key: key, Err: errBackendClosed}
	}

	state := m.bucketLocked(key, params, now).refill(params, now)
	state, result := state.take(params)
	m.buckets[key] = &bucketEntry{state: state, expiresAt: m.clock().Add(params.IdleTTL())}

	return result, nil
}

// PeekTokens returns the refilled token count without consuming.
func (m *MemoryBackend) PeekTokens(ctx context.Context, key string, params BucketParams, now time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, &limits.StoreError{Op: "peek_tokens", Key: key, Err: errBackendClosed}
	}

	return m.bucketLocked(key, params, now).refill(params, now).Tokens, nil
}

// Cleanup removes expired counters and buckets.
func (m *MemoryBackend) Cleanup(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, e := range m.counters {
		if !now.Before(e.expiresAt) {
			delete(m.counters, key)
			deleted++
		}
	}
	for key, e := range m.buckets {
		if !now.Before(e.expiresAt) {
			delete(m.buckets, key)
			deleted++
		}
	}

	return deleted, nil
}

// Ping reports whether the backend is still open.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &limits.StoreError{Op: "ping", Err: errBackendClosed}
	}
	return nil
}

// Close stops the cleanup goroutine. Subsequent calls fail with a store error.
func (m *MemoryBackend) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
	return nil
}

// Size returns the number of live counters.
// This is useful for monitoring and testing.
func (m *MemoryBackend) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// liveCounterLocked returns the entry for key, dropping it if expired.
// Caller must hold the lock.
func (m *MemoryBackend) liveCounterLocked(key string) *counterEntry {
	e, ok := m.counters[key]
	if !ok {
		return nil
	}
	if !m.clock().Before(e.expiresAt) {
		delete(m.counters, key)
		return nil
	}
	return e
}

// incrLocked increments key, creating it with ttl if absent.
// Caller must hold the lock.
func (m *MemoryBackend) incrLocked(key string, ttl time.Duration) int64 {
	e := m.liveCounterLocked(key)
	if e == nil {
		e = &counterEntry{expiresAt: m.clock().Add(ttl)}
		m.counters[key] = e
	}
	e.value++
	return e.value
}

// bucketLocked returns the stored bucket state or a full bucket.
// Caller must hold the lock.
func (m *MemoryBackend) bucketLocked(key string, params BucketParams, now time.Time) bucketState {
	e, ok := m.buckets[key]
	if !ok || !m.clock().Before(e.expiresAt) {
		return fullBucket(params, now)
	}
	return e.state
}

// cleanupLoop runs periodic cleanup of expired entries.
func (m *MemoryBackend) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = m.Cleanup(context.Background(), m.clock())
		case <-m.done:
			return
		}
	}
}
