package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to the market-data provider.
//
// Metrics:
//   - pescanner_upstream_requests_total: call count by outcome
//   - pescanner_upstream_request_duration_seconds: call latency, permit wait excluded
type UpstreamMetrics struct {
	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(registry prometheus.Registerer) *UpstreamMetrics {
	um := &UpstreamMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of market-data provider calls",
			},
			[]string{"outcome"},
		),

		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Market-data provider call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(um.requests, um.latency)
	return um
}

// RecordCall records one provider call.
func (um *UpstreamMetrics) RecordCall(outcome string, duration time.Duration) {
	um.requests.WithLabelValues(outcome).Inc()
	if duration > 0 {
		um.latency.Observe(duration.Seconds())
	}
}
