package health

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status values reported by checks and by the readiness probe.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const defaultCheckTimeout = 5 * time.Second

// ErrCheckTimeout is reported when a check does not return within the
// checker's timeout.
var ErrCheckTimeout = errors.New("health check timeout")

// CheckFunc probes one dependency and returns nil when it is usable.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
	Critical   bool          `json:"critical"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
}

// HealthStatus is the body of /health and /ready.
type HealthStatus struct {
	// Status is "ok" for liveness and "ready", "degraded" or "unhealthy"
	// for readiness.
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Serving reports whether the status should be answered with 200.
func (s HealthStatus) Serving() bool {
	return s.Status != StatusUnhealthy
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Checker runs readiness checks.
//
// Quota and throttle both keep serving through a store outage, so most
// dependencies are registered as non-critical: a failure reports
// "degraded" with 200. Only a failing critical check answers 503.
type Checker struct {
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks []check
}

// New creates a checker. A zero timeout selects 5s per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = defaultCheckTimeout
	}
	return &Checker{checkTimeout: checkTimeout}
}

// RegisterCheck adds or replaces a non-critical check.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.register(check{name: name, fn: fn})
}

// RegisterCriticalCheck adds or replaces a check whose failure makes the
// service unready.
func (c *Checker) RegisterCriticalCheck(name string, fn CheckFunc) {
	c.register(check{name: name, fn: fn, critical: true})
}

func (c *Checker) register(ch check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks = slices.DeleteFunc(c.checks, func(existing check) bool {
		return existing.name == ch.name
	})
	c.checks = append(c.checks, ch)
	slices.SortFunc(c.checks, func(a, b check) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})
}

// Names returns the registered check names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.checks))
	for i, ch := range c.checks {
		names[i] = ch.name
	}
	return names
}

// CheckLiveness reports that the process is running. It never touches
// dependencies.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	return HealthStatus{Status: StatusOK, Timestamp: time.Now().UTC()}
}

// CheckReadiness runs every check concurrently and aggregates the results.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, ch := range checks {
		i, ch := i, ch
		g.Go(func() error {
			results[i] = c.run(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:    StatusReady,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}
	for i, ch := range checks {
		result := results[i]
		status.Checks[ch.name] = result
		if result.Status != StatusUnhealthy {
			continue
		}
		if result.Critical {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusReady {
			status.Status = StatusDegraded
		}
	}
	return status
}

// run executes one check under the checker timeout. A check that ignores
// its context is abandoned once the timeout passes.
func (c *Checker) run(ctx context.Context, ch check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- ch.fn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	elapsed := time.Since(start)
	result := CheckResult{
		Status:     StatusOK,
		Critical:   ch.critical,
		Duration:   elapsed,
		DurationMS: float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
