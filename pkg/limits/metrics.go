package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for quota and throttle decisions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Quota engine
	quotaChecks      *prometheus.CounterVec
	quotaRecords     *prometheus.CounterVec
	quotaFailOpen    *prometheus.CounterVec
	quotaStoreErrors *prometheus.CounterVec

	// Upstream throttle
	throttleAcquires *prometheus.CounterVec
	throttleWait     *prometheus.HistogramVec
	throttleDegraded *prometheus.GaugeVec

	// Store latency
	storeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		quotaChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pescanner_quota_checks_total",
				Help: "Total number of quota checks performed",
			},
			[]string{"tier", "result"},
		),

		quotaRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pescanner_quota_records_total",
				Help: "Total number of served requests counted against a quota",
			},
			[]string{"tier"},
		),

		quotaFailOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pescanner_quota_fail_open_total",
				Help: "Total number of quota checks allowed because the store was unavailable",
			},
			[]string{"tier"},
		),

		quotaStoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pescanner_quota_store_errors_total",
				Help: "Total number of store errors swallowed by the quota engine",
			},
			[]string{"operation"},
		),

		throttleAcquires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pescanner_throttle_acquire_total",
				Help: "Total number of upstream permit requests",
			},
			[]string{"throttle", "mode", "result"},
		),

		throttleWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pescanner_throttle_wait_seconds",
				Help:    "Time spent waiting for an upstream permit",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
			},
			[]string{"throttle"},
		),

		throttleDegraded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pescanner_throttle_degraded",
				Help: "1 when the throttle runs on its process-local fallback bucket",
			},
			[]string{"throttle"},
		),

		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pescanner_store_operation_duration_seconds",
				Help:    "Duration of shared store operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
			[]string{"operation"},
		),
	}
}

// RecordQuotaCheck records a quota decision.
func (m *Metrics) RecordQuotaCheck(tier Tier, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.quotaChecks.WithLabelValues(string(tier), result).Inc()
}

// RecordQuotaUsage records one served request for a tier.
func (m *Metrics) RecordQuotaUsage(tier Tier) {
	if m == nil {
		return
	}
	m.quotaRecords.WithLabelValues(string(tier)).Inc()
}

// RecordFailOpen records a check that was allowed without the store.
func (m *Metrics) RecordFailOpen(tier Tier) {
	if m == nil {
		return
	}
	m.quotaFailOpen.WithLabelValues(string(tier)).Inc()
}

// RecordStoreError records a swallowed store error.
func (m *Metrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.quotaStoreErrors.WithLabelValues(operation).Inc()
}

// RecordThrottleAcquire records the outcome of a permit request.
// mode is "shared" or "local"; result is "granted", "timeout" or "cancelled".
func (m *Metrics) RecordThrottleAcquire(name, mode, result string, waited time.Duration) {
	if m == nil {
		return
	}
	m.throttleAcquires.WithLabelValues(name, mode, result).Inc()
	m.throttleWait.WithLabelValues(name).Observe(waited.Seconds())
}

// SetThrottleDegraded flags whether a throttle runs on its local bucket.
func (m *Metrics) SetThrottleDegraded(name string, degraded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	m.throttleDegraded.WithLabelValues(name).Set(v)
}

// RecordStoreDuration records the latency of a store operation.
func (m *Metrics) RecordStoreDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(d.Seconds())
}
