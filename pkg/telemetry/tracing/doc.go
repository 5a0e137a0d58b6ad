// Package tracing provides OpenTelemetry tracing for the quota service.
//
// # Overview
//
// New installs a global tracer provider that exports spans over OTLP gRPC.
// The quota engine, the upstream throttle and the upstream client obtain
// their tracers from the global provider, so their spans (quota.check,
// quota.record, quota.reserve, throttle.acquire, upstream.fetch) join the
// request span opened by HTTPMiddleware without further wiring.
//
// # Trace Context Propagation
//
// W3C Trace Context is used on both sides of the service:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// Incoming requests are parsed by HTTPMiddleware. Outgoing upstream calls
// carry the header via Inject.
//
// # Sampling
//
// SampleRatio selects the fraction of root traces recorded. Child spans
// follow their parent's decision.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	router.Use(tracing.HTTPMiddleware)
//
// When tracing is disabled, New returns a noop tracer and spans cost next
// to nothing.
package tracing
