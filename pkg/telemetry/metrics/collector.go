package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "pescanner"

	// OtherRoute replaces route labels beyond the cardinality limit.
	OtherRoute = "other"

	defaultMaxCardinality = 1000
)

// Collector owns the registry and the service's collectors.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics
	limitsMetrics   *limits.Metrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector. A nil registry creates a fresh one.
// A disabled configuration still creates the registry so that callers can
// record unconditionally; only the endpoint is left unmounted.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Collector{
		enabled:            cfg.IsEnabled(),
		registry:           registry,
		requestMetrics:     NewRequestMetrics(registry),
		upstreamMetrics:    NewUpstreamMetrics(registry),
		limitsMetrics:      limits.NewMetrics(registry),
		cardinalityLimiter: NewCardinalityLimiter(defaultMaxCardinality),
	}
}

// Enabled reports whether the metrics endpoint should be exposed.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// RecordRequest records a served HTTP request. route is the matched route
// pattern; an empty route is recorded as "other".
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if route == "" || !c.cardinalityLimiter.Allow(method+" "+route) {
		route = OtherRoute
	}
	c.requestMetrics.RecordRequest(route, method, strconv.Itoa(status), duration)
}

// RecordUpstream records an outbound market-data call. outcome is "ok",
// "http_error", "error" or "throttled".
func (c *Collector) RecordUpstream(outcome string, duration time.Duration) {
	c.upstreamMetrics.RecordCall(outcome, duration)
}

// Limits returns the quota and throttle metrics registered on this
// collector's registry.
func (c *Collector) Limits() *limits.Metrics {
	return c.limitsMetrics
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter with the given maximum.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet may be used. Known label sets are always
// allowed; new ones only while under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
