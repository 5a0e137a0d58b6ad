package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler builds a sampler for the given ratio.
//
// A ratio of 1 records everything and 0 records nothing. Anything between
// samples on the trace ID hash, so every service sharing a trace makes the
// same decision.
//
// The sampler is wrapped in ParentBased: a span with a sampled parent is
// always recorded, a span with an unsampled parent never is, and only root
// spans consult the ratio.
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0.0 || ratio > 1.0 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	var base sdktrace.Sampler
	switch ratio {
	case 1.0:
		base = sdktrace.AlwaysSample()
	case 0.0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.ParentBased(base), nil
}
