package quota

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
)

const (
	// DefaultKeyPrefix is the first segment of every quota key.
	DefaultKeyPrefix = "ratelimit"

	// DefaultExpiryBuffer is added to a day when expiring counters, to
	// tolerate clock skew between instances.
	DefaultExpiryBuffer = time.Hour

	// DefaultOpTimeout bounds each store call.
	DefaultOpTimeout = 500 * time.Millisecond
)

// Engine enforces daily quotas per tier and identity.
// Engine is safe for concurrent use.
type Engine struct {
	store     storage.Backend
	tiers     atomic.Pointer[TierTable]
	keyPrefix string
	ttl       time.Duration
	opTimeout time.Duration
	clock     func() time.Time
	logger    *slog.Logger
	metrics   *limits.Metrics
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeyPrefix sets the first key segment (default "ratelimit").
func WithKeyPrefix(prefix string) Option {
	return func(e *Engine) { e.keyPrefix = prefix }
}

// WithExpiryBuffer sets how far past 24h counters live (default 1h).
func WithExpiryBuffer(d time.Duration) Option {
	return func(e *Engine) { e.ttl = 24*time.Hour + d }
}

// WithOpTimeout bounds each store call (default 500ms).
func WithOpTimeout(d time.Duration) Option {
	return func(e *Engine) { e.opTimeout = d }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *limits.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine on store with the given tier table.
// A nil table uses DefaultTierTable.
func NewEngine(store storage.Backend, tiers *TierTable, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		keyPrefix: DefaultKeyPrefix,
		ttl:       24*time.Hour + DefaultExpiryBuffer,
		opTimeout: DefaultOpTimeout,
		clock:     time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/quota"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if tiers == nil {
		tiers = DefaultTierTable()
	}
	e.tiers.Store(tiers)
	e.logger = e.logger.With("component", "quota")
	return e
}

// NewEngineFromConfig creates an engine from the quota and store sections.
func NewEngineFromConfig(store storage.Backend, quotaCfg config.QuotaConfig, storeCfg config.StoreConfig, opts ...Option) *Engine {
	base := []Option{
		WithKeyPrefix(quotaCfg.KeyPrefix),
		WithExpiryBuffer(quotaCfg.ExpiryBuffer),
		WithOpTimeout(storeCfg.OpTimeout),
	}
	return NewEngine(store, TiersFromConfig(quotaCfg), append(base, opts...)...)
}

// SetTiers atomically replaces the tier table. In-flight checks finish with
// the table they started with.
func (e *Engine) SetTiers(t *TierTable) {
	e.tiers.Store(t)
	e.logger.Info("tier table updated")
}

// Tiers returns the current tier table.
func (e *Engine) Tiers() *TierTable {
	return e.tiers.Load()
}

// Key returns the counter key for tier and identity on the UTC day of t.
func (e *Engine) Key(tier limits.Tier, identity string, t time.Time) string {
	return e.keyPrefix + ":" + string(tier) + ":" + identity + ":" + t.UTC().Format("2006-01-02")
}

// Check decides whether identity may issue one more request today. It never
// modifies the store. Remaining counts the requests left after this one.
func (e *Engine) Check(ctx context.Context, tier limits.Tier, identity string) limits.RateLimitResult {
	table := e.tiers.Load()
	policy, tier := table.Lookup(tier)

	if policy.Unlimited() {
		e.metrics.RecordQuotaCheck(tier, true)
		return unlimitedResult(tier)
	}

	ctx, span := e.tracer.Start(ctx, "quota.check", trace.WithAttributes(attribute.String("quota.tier", string(tier))))
	defer span.End()

	now := e.clock()
	key := e.Key(tier, identity, now)

	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	start := time.Now()
	count, err := e.store.Get(opCtx, key)
	cancel()
	e.metrics.RecordStoreDuration("get", time.Since(start))

	if err != nil {
		span.RecordError(err)
		return e.failOpen(tier, policy, now, "check", err)
	}

	var result limits.RateLimitResult
	if count >= policy.Limit {
		result = e.denied(table, tier, policy, now)
	} else {
		result = allowedResult(tier, policy, now, policy.Limit-count-1)
	}

	span.SetAttributes(attribute.Bool("quota.allowed", result.Allowed))
	e.metrics.RecordQuotaCheck(tier, result.Allowed)
	return result
}

// Record counts one served request. Store errors are logged and dropped.
func (e *Engine) Record(ctx context.Context, tier limits.Tier, identity string) {
	policy, tier := e.tiers.Load().Lookup(tier)
	if policy.Unlimited() {
		return
	}

	ctx, span := e.tracer.Start(ctx, "quota.record", trace.WithAttributes(attribute.String("quota.tier", string(tier))))
	defer span.End()

	key := e.Key(tier, identity, e.clock())

	// The request has already been served; a client disconnect must not
	// cancel the increment.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opTimeout)
	defer cancel()

	start := time.Now()
	_, err := e.store.Incr(opCtx, key, e.ttl)
	e.metrics.RecordStoreDuration("incr", time.Since(start))

	if err != nil {
		span.RecordError(err)
		e.metrics.RecordStoreError("record")
		e.logger.Warn("quota store unavailable, usage not recorded",
			"tier", tier,
			"error", err,
		)
		return
	}

	e.metrics.RecordQuotaUsage(tier)
}

// Reservation is a unit of quota taken by Reserve. A nil Reservation means
// nothing was taken and Release is a no-op.
type Reservation struct {
	key  string
	tier limits.Tier
}

// Reserve atomically takes one unit of quota if the identity is under its
// limit. The returned reservation must be released if the request is not
// served.
func (e *Engine) Reserve(ctx context.Context, tier limits.Tier, identity string) (limits.RateLimitResult, *Reservation) {
	table := e.tiers.Load()
	policy, tier := table.Lookup(tier)

	if policy.Unlimited() {
		e.metrics.RecordQuotaCheck(tier, true)
		return unlimitedResult(tier), nil
	}

	ctx, span := e.tracer.Start(ctx, "quota.reserve", trace.WithAttributes(attribute.String("quota.tier", string(tier))))
	defer span.End()

	now := e.clock()
	key := e.Key(tier, identity, now)

	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	start := time.Now()
	count, ok, err := e.store.IncrIfBelow(opCtx, key, policy.Limit, e.ttl)
	cancel()
	e.metrics.RecordStoreDuration("incr_if_below", time.Since(start))

	if err != nil {
		span.RecordError(err)
		return e.failOpen(tier, policy, now, "reserve", err), nil
	}

	span.SetAttributes(attribute.Bool("quota.allowed", ok))
	e.metrics.RecordQuotaCheck(tier, ok)

	if !ok {
		return e.denied(table, tier, policy, now), nil
	}

	e.metrics.RecordQuotaUsage(tier)
	return allowedResult(tier, policy, now, policy.Limit-count), &Reservation{key: key, tier: tier}
}

// Release returns a reserved unit. Store errors are logged and dropped.
func (e *Engine) Release(ctx context.Context, r *Reservation) {
	if r == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opTimeout)
	defer cancel()

	if _, err := e.store.Decr(opCtx, r.key); err != nil {
		e.metrics.RecordStoreError("release")
		e.logger.Warn("quota store unavailable, reservation not released",
			"tier", r.tier,
			"error", err,
		)
	}
}

// Usage returns today's consumption for identity. Unlike Check it reports
// store errors, since it serves operators rather than end users.
func (e *Engine) Usage(ctx context.Context, tier limits.Tier, identity string) (limits.Usage, error) {
	if err := validateSubject(tier, identity); err != nil {
		return limits.Usage{}, err
	}

	policy, tier := e.tiers.Load().Lookup(tier)
	if policy.Unlimited() {
		return limits.Usage{
			Tier:      tier,
			Identity:  identity,
			Limit:     limits.Unlimited,
			Remaining: limits.Unlimited,
		}, nil
	}

	now := e.clock()
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	used, err := e.store.Get(opCtx, e.Key(tier, identity, now))
	if err != nil {
		return limits.Usage{}, err
	}

	reset := limits.NextUTCMidnight(now)
	return limits.Usage{
		Tier:      tier,
		Identity:  identity,
		Used:      used,
		Limit:     policy.Limit,
		Remaining: max(0, policy.Limit-used),
		ResetAt:   &reset,
	}, nil
}

// Reset deletes today's counter for identity.
func (e *Engine) Reset(ctx context.Context, tier limits.Tier, identity string) error {
	if err := validateSubject(tier, identity); err != nil {
		return err
	}

	_, tier = e.tiers.Load().Lookup(tier)

	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	if err := e.store.Delete(opCtx, e.Key(tier, identity, e.clock())); err != nil {
		return err
	}

	e.logger.Info("quota reset", "tier", tier, "identity", identity)
	return nil
}

func (e *Engine) failOpen(tier limits.Tier, policy TierPolicy, now time.Time, op string, err error) limits.RateLimitResult {
	e.metrics.RecordStoreError(op)
	e.metrics.RecordFailOpen(tier)
	e.logger.Warn("quota store unavailable, failing open",
		"tier", tier,
		"operation", op,
		"error", err,
	)

	result := allowedResult(tier, policy, now, max(0, policy.Limit-1))
	result.Degraded = true
	return result
}

func (e *Engine) denied(table *TierTable, tier limits.Tier, policy TierPolicy, now time.Time) limits.RateLimitResult {
	reset := limits.NextUTCMidnight(now)
	msg, upgrade := table.DenialMessage(tier)
	return limits.RateLimitResult{
		Allowed:        false,
		Tier:           tier,
		Remaining:      0,
		Limit:          policy.Limit,
		ResetAt:        &reset,
		Message:        msg,
		SuggestUpgrade: upgrade,
	}
}

func allowedResult(tier limits.Tier, policy TierPolicy, now time.Time, remaining int64) limits.RateLimitResult {
	reset := limits.NextUTCMidnight(now)
	return limits.RateLimitResult{
		Allowed:   true,
		Tier:      tier,
		Remaining: remaining,
		Limit:     policy.Limit,
		ResetAt:   &reset,
	}
}

func unlimitedResult(tier limits.Tier) limits.RateLimitResult {
	return limits.RateLimitResult{
		Allowed:   true,
		Tier:      tier,
		Remaining: limits.Unlimited,
		Limit:     limits.Unlimited,
	}
}

func validateSubject(tier limits.Tier, identity string) error {
	if tier == "" {
		return limits.ErrInvalidTier
	}
	if identity == "" {
		return limits.ErrInvalidIdentity
	}
	return nil
}
