package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/types"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/identity"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/quota"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/logging"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/tracing"
)

// Quota response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// QuotaEngine is the part of quota.Engine the middleware drives.
type QuotaEngine interface {
	Check(ctx context.Context, tier limits.Tier, identity string) limits.RateLimitResult
	Record(ctx context.Context, tier limits.Tier, identity string)
	Reserve(ctx context.Context, tier limits.Tier, identity string) (limits.RateLimitResult, *quota.Reservation)
	Release(ctx context.Context, r *quota.Reservation)
}

// QuotaOptions configures the Quota middleware.
type QuotaOptions struct {
	// Engine makes the quota decisions. Required.
	Engine QuotaEngine

	// Resolver maps a request to a subject. Defaults to everyone anonymous.
	Resolver identity.Resolver

	// TrustProxyHeaders lets the anonymous fallback read X-Forwarded-For
	// and X-Real-IP.
	TrustProxyHeaders bool

	// Mode is config.QuotaModeTwoStep or config.QuotaModeReserve.
	Mode string

	// Links are the signup and upgrade URLs offered on rejection.
	Links types.Links

	// Logger receives resolution failures.
	Logger *slog.Logger

	// Clock is used for Retry-After and the rejection timestamp.
	Clock func() time.Time
}

// Quota enforces the daily quota on the wrapped handler.
//
// Two-step mode checks on admission and records after the handler
// finished with a status below 400 on a live request. Reserve mode takes
// the unit on admission and releases it when those conditions fail or the
// handler panics.
//
// Example:
//
//	r.With(middleware.Quota(middleware.QuotaOptions{
//	    Engine:   engine,
//	    Resolver: resolver,
//	    Links:    types.Links{UpgradeURL: "/pricing", SignupURL: "/signup"},
//	})).Get("/api/analyze/{ticker}", analyze)
func Quota(opts QuotaOptions) func(http.Handler) http.Handler {
	if opts.Engine == nil {
		panic("middleware: Quota requires an Engine")
	}
	if opts.Resolver == nil {
		opts.Resolver = identity.IPResolver{TrustProxyHeaders: opts.TrustProxyHeaders}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	reserve := opts.Mode == config.QuotaModeReserve

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := identity.Resolve(r, opts.Resolver, opts.TrustProxyHeaders, opts.Logger)

			ctx := logging.WithSubject(r.Context(), string(subject.Tier), subject.Identity)
			ctx = WithSubject(ctx, subject)
			noteSubject(ctx, subject)

			var (
				result      limits.RateLimitResult
				reservation *quota.Reservation
			)
			if reserve {
				result, reservation = opts.Engine.Reserve(ctx, subject.Tier, subject.Identity)
			} else {
				result = opts.Engine.Check(ctx, subject.Tier, subject.Identity)
			}

			tracing.SetQuotaAttributes(trace.SpanFromContext(ctx), result)
			setRateLimitHeaders(w.Header(), result)

			if !result.Allowed {
				reject(w, result, opts.Links, opts.Clock())
				return
			}

			ctx = WithQuotaResult(ctx, result)
			rw := newResponseWriter(w)

			finished := false
			if reservation != nil {
				defer func() {
					if !finished {
						opts.Engine.Release(ctx, reservation)
					}
				}()
			}

			next.ServeHTTP(rw, r.WithContext(ctx))
			finished = true

			served := rw.statusCode < http.StatusBadRequest && ctx.Err() == nil
			switch {
			case reserve && !served:
				opts.Engine.Release(ctx, reservation)
			case !reserve && served:
				opts.Engine.Record(ctx, subject.Tier, subject.Identity)
			}
		})
	}
}

// setRateLimitHeaders writes the X-RateLimit-* headers. Reset is omitted
// for unlimited tiers.
func setRateLimitHeaders(h http.Header, result limits.RateLimitResult) {
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(result.Limit, 10))
	h.Set(HeaderRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
	if result.ResetAt != nil {
		h.Set(HeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
	}
}

// reject answers 429 with the conversion body and Retry-After.
func reject(w http.ResponseWriter, result limits.RateLimitResult, links types.Links, now time.Time) {
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retryAfterSeconds(result.RetryAfter(now)), 10))
	types.WriteJSON(w, http.StatusTooManyRequests, types.NewRateLimitExceeded(result, links, now))
}

// retryAfterSeconds rounds d up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
