package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// TierKey is the context key for the caller's tier.
	TierKey contextKey = "tier"

	// IdentityKey is the context key for the caller's quota identity.
	IdentityKey contextKey = "identity"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithSubject adds the caller's tier and identity to the context.
func WithSubject(ctx context.Context, tier, identity string) context.Context {
	ctx = context.WithValue(ctx, TierKey, tier)
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetTier retrieves the tier from the context.
func GetTier(ctx context.Context) string {
	if tier, ok := ctx.Value(TierKey).(string); ok {
		return tier
	}
	return ""
}

// GetIdentity retrieves the identity from the context.
func GetIdentity(ctx context.Context) string {
	if identity, ok := ctx.Value(IdentityKey).(string); ok {
		return identity
	}
	return ""
}

// extractContextFields returns the request-scoped fields present in ctx.
func extractContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if tier := GetTier(ctx); tier != "" {
		fields = append(fields, "tier", tier)
	}
	if identity := GetIdentity(ctx); identity != "" {
		fields = append(fields, "identity", identity)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	return fields
}
