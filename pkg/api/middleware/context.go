package middleware

import (
	"context"
	"time"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/identity"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// Context keys for storing values in request context.
const (
	// StartTimeKey stores the request start time for latency calculation.
	StartTimeKey contextKey = "start_time"

	// SubjectKey stores the resolved quota subject.
	SubjectKey contextKey = "subject"

	// QuotaResultKey stores the quota decision that admitted the request.
	QuotaResultKey contextKey = "quota_result"

	requestInfoKey contextKey = "request_info"
)

// requestInfo is filled in by inner middleware for the access log.
type requestInfo struct {
	subject *identity.Subject
}

// noteSubject records subject for the access log, when Logging is installed.
func noteSubject(ctx context.Context, subject identity.Subject) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.subject = &subject
	}
}

// WithQuotaResult returns ctx carrying result.
func WithQuotaResult(ctx context.Context, result limits.RateLimitResult) context.Context {
	return context.WithValue(ctx, QuotaResultKey, result)
}

// QuotaResultFromContext returns the quota decision for the request, if the
// Quota middleware ran.
func QuotaResultFromContext(ctx context.Context) (limits.RateLimitResult, bool) {
	result, ok := ctx.Value(QuotaResultKey).(limits.RateLimitResult)
	return result, ok
}

// WithSubject returns ctx carrying subject.
func WithSubject(ctx context.Context, subject identity.Subject) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

// SubjectFromContext returns the resolved subject for the request.
func SubjectFromContext(ctx context.Context) (identity.Subject, bool) {
	subject, ok := ctx.Value(SubjectKey).(identity.Subject)
	return subject, ok
}

// GetStartTime extracts the request start time from the context.
// Returns zero time if not found.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
