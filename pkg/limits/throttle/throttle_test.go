package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
)

// flakyBackend fails bucket operations while down is set.
type flakyBackend struct {
	storage.Backend
	down atomic.Bool
}

func (f *flakyBackend) TakeToken(ctx context.Context, key string, p storage.BucketParams, now time.Time) (storage.BucketResult, error) {
	if f.down.Load() {
		return storage.BucketResult{}, &limits.StoreError{Op: "take_token", Key: key, Err: errors.New("connection refused")}
	}
	return f.Backend.TakeToken(ctx, key, p, now)
}

func (f *flakyBackend) PeekTokens(ctx context.Context, key string, p storage.BucketParams, now time.Time) (float64, error) {
	if f.down.Load() {
		return 0, &limits.StoreError{Op: "peek_tokens", Key: key, Err: errors.New("connection refused")}
	}
	return f.Backend.PeekTokens(ctx, key, p, now)
}

func newMemoryStore(t *testing.T) *storage.MemoryBackend {
	t.Helper()
	b := storage.NewMemoryBackend()
	t.Cleanup(func() { b.Close() })
	return b
}

func testConfig() Config {
	return Config{
		Name:               "market-data",
		Capacity:           5,
		RefillRate:         2,
		DefaultTimeout:     time.Second,
		MaxPollInterval:    50 * time.Millisecond,
		StoreRetryInterval: 20 * time.Millisecond,
	}
}

// ============================================================================
// Acquire
// ============================================================================

func TestThrottle_BurstThenTimeout(t *testing.T) {
	th := New(newMemoryStore(t), testConfig())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := th.Acquire(ctx, time.Second); err != nil {
			t.Fatalf("acquire %d: unexpected error %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Expected burst to be granted immediately, took %v", elapsed)
	}

	start = time.Now()
	err := th.Acquire(ctx, 100*time.Millisecond)
	if !errors.Is(err, limits.ErrThrottleTimeout) {
		t.Fatalf("Expected ErrThrottleTimeout, got %v", err)
	}

	var timeoutErr *limits.ThrottleTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected *ThrottleTimeoutError, got %T", err)
	}
	if timeoutErr.Name != "market-data" {
		t.Errorf("Expected name market-data, got %q", timeoutErr.Name)
	}

	// 0.5s of refill is needed, so there is no point sleeping
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected immediate timeout, took %v", elapsed)
	}
}

func TestThrottle_WaitsForRefill(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 1
	cfg.RefillRate = 20 // one token per 50ms
	th := New(newMemoryStore(t), cfg)
	ctx := context.Background()

	if err := th.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	if err := th.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected second acquire to wait for refill, took %v", elapsed)
	}
}

func TestThrottle_ContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 1
	cfg.RefillRate = 0.5 // 2s per token
	th := New(newMemoryStore(t), cfg)

	if err := th.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := th.Acquire(ctx, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if errors.Is(err, limits.ErrThrottleTimeout) {
		t.Error("Cancellation must not be reported as a throttle timeout")
	}
}

func TestThrottle_AlreadyCancelled(t *testing.T) {
	reg := prometheus.NewRegistry()
	th := New(newMemoryStore(t), testConfig(), WithMetrics(limits.NewMetrics(reg)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := th.Acquire(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	stats := th.Stats(context.Background())
	if stats.AvailableTokens != stats.Capacity {
		t.Errorf("Cancelled acquire took a token: %v of %v left", stats.AvailableTokens, stats.Capacity)
	}
	if got := counterValue(t, reg, "pescanner_throttle_acquire_total", map[string]string{
		"mode":   ModeShared,
		"result": "cancelled",
	}); got != 1 {
		t.Errorf("Expected one cancelled acquire in shared mode, got %v", got)
	}
}

func TestThrottle_DefaultTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 1
	cfg.RefillRate = 0.1
	cfg.DefaultTimeout = 20 * time.Millisecond
	th := New(newMemoryStore(t), cfg)

	th.Acquire(context.Background(), 0)

	if err := th.Acquire(context.Background(), 0); !errors.Is(err, limits.ErrThrottleTimeout) {
		t.Errorf("Expected default timeout to apply, got %v", err)
	}
}

func TestThrottle_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 1
	cfg.Disabled = true
	th := New(newMemoryStore(t), cfg)

	for i := 0; i < 20; i++ {
		if err := th.Acquire(context.Background(), time.Millisecond); err != nil {
			t.Fatalf("acquire %d: disabled throttle refused: %v", i+1, err)
		}
	}
}

// ============================================================================
// Fleet-wide coordination
// ============================================================================

func TestThrottle_SharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := storage.NewRedisBackend(client)
	instances := []*Throttle{
		New(store, testConfig()),
		New(store, testConfig()),
		New(store, testConfig()),
	}

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for _, th := range instances {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(th *Throttle) {
				defer wg.Done()
				if th.Acquire(context.Background(), time.Millisecond) == nil {
					granted.Add(1)
				}
			}(th)
		}
	}
	wg.Wait()

	if got := granted.Load(); got != 5 {
		t.Errorf("Expected the fleet to share 5 tokens, got %d grants", got)
	}
}

func TestThrottle_HourlyCounter(t *testing.T) {
	clock := newManualClock()
	store := newMemoryStore(t)
	th := New(store, testConfig(), WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := th.Acquire(ctx, time.Second); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}

	stats := th.Stats(ctx)
	if stats.RequestsThisHour != 3 {
		t.Errorf("Expected 3 requests this hour, got %d", stats.RequestsThisHour)
	}
	if stats.Mode != ModeShared {
		t.Errorf("Expected shared mode, got %q", stats.Mode)
	}
	if stats.AvailableTokens != 2 {
		t.Errorf("Expected 2 tokens left, got %v", stats.AvailableTokens)
	}

	n, err := store.Get(ctx, "throttle:market-data:requests:2025-01-15-12")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected hourly key to hold 3, got %d", n)
	}
}

// ============================================================================
// Degraded mode
// ============================================================================

func TestThrottle_FallsBackToLocalBucket(t *testing.T) {
	store := &flakyBackend{Backend: newMemoryStore(t)}
	store.down.Store(true)

	reg := prometheus.NewRegistry()
	metrics := limits.NewMetrics(reg)
	th := New(store, testConfig(), WithMetrics(metrics))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := th.Acquire(ctx, time.Second); err != nil {
			t.Fatalf("acquire %d with store down: %v", i+1, err)
		}
	}

	if !th.Degraded() {
		t.Error("Expected throttle to report degraded mode")
	}
	if th.Mode() != ModeLocal {
		t.Errorf("Expected local mode, got %q", th.Mode())
	}

	// The local bucket enforces the same parameters
	if err := th.Acquire(ctx, 10*time.Millisecond); !errors.Is(err, limits.ErrThrottleTimeout) {
		t.Errorf("Expected local bucket to be exhausted, got %v", err)
	}

	stats := th.Stats(ctx)
	if stats.Mode != ModeLocal || stats.RequestsThisHour != -1 {
		t.Errorf("unexpected degraded stats %+v", stats)
	}

	if gauge := gaugeValue(t, reg, "pescanner_throttle_degraded"); gauge != 1 {
		t.Errorf("Expected degraded gauge 1, got %v", gauge)
	}
}

func TestThrottle_RecoversWhenStoreReturns(t *testing.T) {
	store := &flakyBackend{Backend: newMemoryStore(t)}
	store.down.Store(true)

	th := New(store, testConfig())
	ctx := context.Background()

	if err := th.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !th.Degraded() {
		t.Fatal("Expected degraded mode")
	}

	store.down.Store(false)
	time.Sleep(30 * time.Millisecond)

	if err := th.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("acquire after recovery: %v", err)
	}
	if th.Degraded() {
		t.Error("Expected shared mode after store recovery")
	}
}

func TestThrottle_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	th := New(storage.NewRedisBackend(client), testConfig())
	mr.Close()

	if err := th.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("Expected local fallback grant, got %v", err)
	}
	if !th.Degraded() {
		t.Error("Expected degraded mode with redis down")
	}
}

func TestThrottle_NilStoreIsLocal(t *testing.T) {
	th := New(nil, testConfig())

	if err := th.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if th.Mode() != ModeLocal {
		t.Errorf("Expected local mode without a store, got %q", th.Mode())
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	th := NewFromConfig(newMemoryStore(t), cfg.Throttle, cfg.Store)

	stats := th.Stats(context.Background())
	if stats.Name != "market-data" || stats.Capacity != 5 || stats.RefillRate != 2 {
		t.Errorf("unexpected stats from default config %+v", stats)
	}
	if !stats.Enabled {
		t.Error("Expected throttle enabled by default")
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
