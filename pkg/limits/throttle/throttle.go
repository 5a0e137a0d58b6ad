package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
)

// Modes reported by Stats and metrics.
const (
	ModeShared = "shared"
	ModeLocal  = "local"
)

const (
	resultGranted   = "granted"
	resultTimeout   = "timeout"
	resultCancelled = "cancelled"

	hourlyCounterTTL = 2 * time.Hour
)

// Config holds the throttle parameters.
type Config struct {
	// Name identifies the bucket. Instances sharing a name share a budget.
	Name string

	// Capacity is the burst size.
	Capacity float64

	// RefillRate is the sustained rate in tokens per second.
	RefillRate float64

	// DefaultTimeout applies when Acquire is called with timeout <= 0.
	DefaultTimeout time.Duration

	// MaxPollInterval caps a single sleep between attempts.
	MaxPollInterval time.Duration

	// StoreRetryInterval is how long the local bucket is used after a store
	// failure before the store is tried again.
	StoreRetryInterval time.Duration

	// KeyPrefix is the first segment of store keys.
	KeyPrefix string

	// OpTimeout bounds each store call.
	OpTimeout time.Duration

	// Disabled grants every acquire without touching any bucket.
	Disabled bool
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = config.DefaultThrottleName
	}
	if c.Capacity <= 0 {
		c.Capacity = config.DefaultThrottleCapacity
	}
	if c.RefillRate <= 0 {
		c.RefillRate = config.DefaultThrottleRefillRate
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = config.DefaultThrottleTimeout
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = config.DefaultThrottleMaxPollInterval
	}
	if c.StoreRetryInterval <= 0 {
		c.StoreRetryInterval = config.DefaultThrottleStoreRetryInterval
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = config.DefaultThrottleKeyPrefix
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = config.DefaultStoreOpTimeout
	}
}

// ConfigFrom maps the throttle and store configuration sections.
func ConfigFrom(tc config.ThrottleConfig, sc config.StoreConfig) Config {
	return Config{
		Name:               tc.Name,
		Capacity:           tc.Capacity,
		RefillRate:         tc.RefillRate,
		DefaultTimeout:     tc.DefaultTimeout,
		MaxPollInterval:    tc.MaxPollInterval,
		StoreRetryInterval: tc.StoreRetryInterval,
		KeyPrefix:          tc.KeyPrefix,
		OpTimeout:          sc.OpTimeout,
		Disabled:           !tc.IsEnabled(),
	}
}

// Stats is a point-in-time view of a throttle.
type Stats struct {
	Name            string  `json:"name"`
	Mode            string  `json:"mode"`
	Enabled         bool    `json:"enabled"`
	AvailableTokens float64 `json:"available_tokens"`
	Capacity        float64 `json:"capacity"`
	RefillRate      float64 `json:"refill_rate"`

	// RequestsThisHour is the fleet-wide count of permits granted in the
	// current UTC hour, or -1 when the store is not in use.
	RequestsThisHour int64 `json:"requests_this_hour"`
}

// Throttle is a fleet-wide token bucket with a local fallback.
// Throttle is safe for concurrent use.
type Throttle struct {
	cfg       Config
	store     storage.Backend
	params    storage.BucketParams
	bucketKey string
	local     *TokenBucket

	mu       sync.Mutex
	degraded bool
	retryAt  time.Time

	clock   func() time.Time
	logger  *slog.Logger
	metrics *limits.Metrics
	tracer  trace.Tracer
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock overrides time.Now for bucket arithmetic and deadlines.
func WithClock(clock func() time.Time) Option {
	return func(t *Throttle) { t.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Throttle) { t.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *limits.Metrics) Option {
	return func(t *Throttle) { t.metrics = m }
}

// New creates a throttle on store. A nil store runs on the local bucket only.
func New(store storage.Backend, cfg Config, opts ...Option) *Throttle {
	cfg.applyDefaults()

	t := &Throttle{
		cfg:       cfg,
		store:     store,
		params:    storage.BucketParams{Capacity: cfg.Capacity, RefillRate: cfg.RefillRate},
		bucketKey: cfg.KeyPrefix + ":" + cfg.Name + ":bucket",
		clock:     time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/throttle"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.local = NewTokenBucket(cfg.Capacity, cfg.RefillRate, t.clock)
	t.logger = t.logger.With("component", "throttle", "throttle", cfg.Name)
	t.metrics.SetThrottleDegraded(cfg.Name, false)
	return t
}

// NewFromConfig creates a throttle from the configuration sections.
func NewFromConfig(store storage.Backend, tc config.ThrottleConfig, sc config.StoreConfig, opts ...Option) *Throttle {
	return New(store, ConfigFrom(tc, sc), opts...)
}

// Name returns the bucket name.
func (t *Throttle) Name() string {
	return t.cfg.Name
}

// Degraded reports whether the throttle is currently on its local bucket.
func (t *Throttle) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded || t.store == nil
}

// Mode returns ModeShared or ModeLocal.
func (t *Throttle) Mode() string {
	if t.Degraded() {
		return ModeLocal
	}
	return ModeShared
}

// Acquire blocks until a permit is granted, the timeout elapses or ctx is
// done. A timeout <= 0 uses the configured default.
//
// On timeout it returns a *limits.ThrottleTimeoutError, which matches
// limits.ErrThrottleTimeout. When the wait needed for the next token
// exceeds the time left it gives up immediately instead of sleeping.
// Context cancellation returns ctx.Err().
func (t *Throttle) Acquire(ctx context.Context, timeout time.Duration) error {
	if t.cfg.Disabled {
		return nil
	}
	if timeout <= 0 {
		timeout = t.cfg.DefaultTimeout
	}

	ctx, span := t.tracer.Start(ctx, "throttle.acquire", trace.WithAttributes(
		attribute.String("throttle.name", t.cfg.Name),
	))
	defer span.End()

	start := t.clock()
	deadline := start.Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			t.finish(span, t.Mode(), resultCancelled, t.clock().Sub(start))
			return err
		}

		res, mode := t.take(ctx)
		if res.Granted {
			t.finish(span, mode, resultGranted, t.clock().Sub(start))
			if mode == ModeShared {
				t.countRequest(ctx)
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			t.finish(span, mode, resultCancelled, t.clock().Sub(start))
			return err
		}

		now := t.clock()
		left := deadline.Sub(now)
		if res.RetryAfter > left {
			waited := now.Sub(start)
			t.finish(span, mode, resultTimeout, waited)
			span.SetStatus(codes.Error, "throttle timeout")
			t.logger.Debug("throttle timeout",
				"waited", waited,
				"retry_after", res.RetryAfter,
			)
			return &limits.ThrottleTimeoutError{Name: t.cfg.Name, Waited: waited}
		}

		pause := min(res.RetryAfter, t.cfg.MaxPollInterval)
		if pause <= 0 {
			pause = time.Millisecond
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.finish(span, mode, resultCancelled, t.clock().Sub(start))
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats returns the current bucket state. It never fails; when the store is
// unreachable the local bucket is reported.
func (t *Throttle) Stats(ctx context.Context) Stats {
	stats := Stats{
		Name:             t.cfg.Name,
		Mode:             ModeLocal,
		Enabled:          !t.cfg.Disabled,
		Capacity:         t.cfg.Capacity,
		RefillRate:       t.cfg.RefillRate,
		RequestsThisHour: -1,
	}

	now := t.clock()
	if t.useStore(now) {
		opCtx, cancel := context.WithTimeout(ctx, t.cfg.OpTimeout)
		defer cancel()

		tokens, err := t.store.PeekTokens(opCtx, t.bucketKey, t.params, now)
		if err == nil {
			stats.Mode = ModeShared
			stats.AvailableTokens = tokens
			if n, err := t.store.Get(opCtx, t.hourKey(now)); err == nil {
				stats.RequestsThisHour = n
			}
			return stats
		}
		t.markDegraded(now, err)
	}

	stats.AvailableTokens = t.local.Available()
	return stats
}

// take makes one attempt against the shared bucket, or the local one when
// the store is unavailable.
func (t *Throttle) take(ctx context.Context) (storage.BucketResult, string) {
	now := t.clock()

	if t.useStore(now) {
		opCtx, cancel := context.WithTimeout(ctx, t.cfg.OpTimeout)
		start := time.Now()
		res, err := t.store.TakeToken(opCtx, t.bucketKey, t.params, now)
		cancel()
		t.metrics.RecordStoreDuration("take_token", time.Since(start))

		if err == nil {
			t.markHealthy()
			return res, ModeShared
		}
		if ctx.Err() != nil {
			// Caller gave up mid-call; not a store failure.
			return storage.BucketResult{RetryAfter: t.cfg.MaxPollInterval}, ModeShared
		}
		t.markDegraded(now, err)
	}

	granted, wait := t.local.Take()
	return storage.BucketResult{Granted: granted, Tokens: t.local.Available(), RetryAfter: wait}, ModeLocal
}

func (t *Throttle) useStore(now time.Time) bool {
	if t.store == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.degraded || !now.Before(t.retryAt)
}

func (t *Throttle) markDegraded(now time.Time, err error) {
	t.mu.Lock()
	wasDegraded := t.degraded
	t.degraded = true
	t.retryAt = now.Add(t.cfg.StoreRetryInterval)
	t.mu.Unlock()

	t.metrics.RecordStoreError("throttle")
	if !wasDegraded {
		t.metrics.SetThrottleDegraded(t.cfg.Name, true)
		t.logger.Warn("shared store unavailable, throttling with local bucket; fleet-wide rate is no longer enforced",
			"error", err,
			"retry_in", t.cfg.StoreRetryInterval,
		)
	}
}

func (t *Throttle) markHealthy() {
	t.mu.Lock()
	wasDegraded := t.degraded
	t.degraded = false
	t.mu.Unlock()

	if wasDegraded {
		t.metrics.SetThrottleDegraded(t.cfg.Name, false)
		t.logger.Info("shared store recovered, throttling fleet-wide again")
	}
}

// countRequest bumps the hourly counter of granted permits.
func (t *Throttle) countRequest(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.OpTimeout)
	defer cancel()

	if _, err := t.store.Incr(opCtx, t.hourKey(t.clock()), hourlyCounterTTL); err != nil {
		t.logger.Debug("hourly request counter not updated", "error", err)
	}
}

func (t *Throttle) hourKey(now time.Time) string {
	return t.cfg.KeyPrefix + ":" + t.cfg.Name + ":requests:" + now.UTC().Format("2006-01-02-15")
}

func (t *Throttle) finish(span trace.Span, mode, result string, waited time.Duration) {
	span.SetAttributes(
		attribute.String("throttle.mode", mode),
		attribute.String("throttle.result", result),
		attribute.Int64("throttle.waited_ms", waited.Milliseconds()),
	)
	t.metrics.RecordThrottleAcquire(t.cfg.Name, mode, result, waited)
}
