package logging

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestContextFields(t *testing.T) {
	ctx := context.Background()

	if fields := extractContextFields(ctx); len(fields) != 0 {
		t.Errorf("Expected no fields for empty context, got %v", fields)
	}

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSubject(ctx, "anonymous", "ip:192.0.2.1")

	if GetRequestID(ctx) != "req-1" {
		t.Errorf("GetRequestID = %q", GetRequestID(ctx))
	}
	if GetTier(ctx) != "anonymous" || GetIdentity(ctx) != "ip:192.0.2.1" {
		t.Errorf("unexpected subject %q %q", GetTier(ctx), GetIdentity(ctx))
	}

	fields := extractContextFields(ctx)
	if len(fields) != 6 {
		t.Fatalf("Expected 3 key/value pairs, got %v", fields)
	}
	if fields[0] != "request_id" || fields[2] != "tier" || fields[4] != "identity" {
		t.Errorf("unexpected field order %v", fields)
	}
}

func TestContextFields_TraceIDs(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	fields := extractContextFields(ctx)
	want := []any{"trace_id", "4bf92f3577b34da6a3ce929d0e0e4736", "span_id", "00f067aa0ba902b7"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %v, want %v", i, fields[i], want[i])
		}
	}
}
