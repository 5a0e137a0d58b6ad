package upstream

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/tracing"
)

// Call outcomes recorded by ThrottledTransport.
const (
	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeError     = "error"
	OutcomeThrottled = "throttled"
)

// Limiter hands out upstream permits. *throttle.Throttle implements it.
type Limiter interface {
	Acquire(ctx context.Context, timeout time.Duration) error
}

// Recorder receives one observation per outbound call.
// *metrics.Collector implements it.
type Recorder interface {
	RecordUpstream(outcome string, duration time.Duration)
}

// ThrottledTransport is an http.RoundTripper that acquires a throttle permit
// before every request. When no permit is granted the request is not sent
// and the throttle's error is returned unchanged.
type ThrottledTransport struct {
	base     http.RoundTripper
	limiter  Limiter
	recorder Recorder
	tracer   trace.Tracer

	// PermitTimeout bounds the wait for a permit. Zero uses the throttle's
	// default.
	PermitTimeout time.Duration

	// CallTimeout bounds the request once a permit is granted, including
	// reading the body. Zero means no limit beyond the caller's context.
	CallTimeout time.Duration
}

// NewThrottledTransport wraps base, or http.DefaultTransport when base is
// nil. recorder may be nil.
func NewThrottledTransport(base http.RoundTripper, limiter Limiter, recorder Recorder) *ThrottledTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ThrottledTransport{
		base:     base,
		limiter:  limiter,
		recorder: recorder,
		tracer:   otel.Tracer("github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/upstream"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), "upstream.fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()

	if err := t.limiter.Acquire(ctx, t.PermitTimeout); err != nil {
		t.record(span, req.URL.Host, OutcomeThrottled, time.Since(start))
		tracing.SetError(span, err)
		return nil, err
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, t.CallTimeout)
	}

	out := req.Clone(callCtx)
	tracing.Inject(ctx, out.Header)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		cancel()
		t.record(span, req.URL.Host, OutcomeError, time.Since(start))
		tracing.SetError(span, err)
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	outcome := OutcomeOK
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = OutcomeHTTPError
	}
	t.record(span, req.URL.Host, outcome, time.Since(start))
	tracing.SetStatus(span, resp.StatusCode)

	return resp, nil
}

func (t *ThrottledTransport) record(span trace.Span, host, outcome string, d time.Duration) {
	tracing.SetUpstreamAttributes(span, host, outcome)
	if t.recorder != nil {
		t.recorder.RecordUpstream(outcome, d)
	}
}

// cancelOnClose releases the call context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// NewTransportFromConfig wraps http.DefaultTransport with the throttle and
// applies the configured per-call timeout.
func NewTransportFromConfig(cfg config.UpstreamConfig, limiter Limiter, recorder Recorder) *ThrottledTransport {
	t := NewThrottledTransport(nil, limiter, recorder)
	t.CallTimeout = cfg.Timeout
	return t
}
