package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

// Attribute keys. The quota.* and throttle.* keys match the ones set by the
// quota engine and throttle on their own spans.
const (
	AttrRequestID  = "pescanner.request_id"
	AttrHTTPStatus = "http.status_code"

	AttrQuotaTier      = "quota.tier"
	AttrQuotaAllowed   = "quota.allowed"
	AttrQuotaLimit     = "quota.limit"
	AttrQuotaRemaining = "quota.remaining"
	AttrQuotaDegraded  = "quota.degraded"

	AttrUpstreamHost    = "upstream.host"
	AttrUpstreamOutcome = "upstream.outcome"
)

// SetQuotaAttributes records a quota decision on span. The identity is not
// recorded.
func SetQuotaAttributes(span trace.Span, result limits.RateLimitResult) {
	span.SetAttributes(
		attribute.String(AttrQuotaTier, string(result.Tier)),
		attribute.Bool(AttrQuotaAllowed, result.Allowed),
		attribute.Int64(AttrQuotaLimit, result.Limit),
		attribute.Int64(AttrQuotaRemaining, result.Remaining),
		attribute.Bool(AttrQuotaDegraded, result.Degraded),
	)
}

// SetUpstreamAttributes records an upstream call outcome on span.
func SetUpstreamAttributes(span trace.Span, host, outcome string) {
	span.SetAttributes(
		attribute.String(AttrUpstreamHost, host),
		attribute.String(AttrUpstreamOutcome, outcome),
	)
}

// SetRequestID tags span with the request ID.
func SetRequestID(span trace.Span, requestID string) {
	if requestID == "" {
		return
	}
	span.SetAttributes(attribute.String(AttrRequestID, requestID))
}

// AddEvent adds a named event to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
