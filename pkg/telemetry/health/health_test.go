package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// TestNew tests the creation of a new health checker.
func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "default timeout",
			timeout:         0,
			expectedTimeout: 5 * time.Second,
		},
		{
			name:            "custom timeout",
			timeout:         2 * time.Second,
			expectedTimeout: 2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout)

			if checker.checkTimeout != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, checker.checkTimeout)
			}
			if len(checker.Names()) != 0 {
				t.Errorf("expected 0 checks, got %d", len(checker.Names()))
			}
		})
	}
}

func TestRegisterCheck_Replaces(t *testing.T) {
	checker := New(time.Second)

	checker.RegisterCheck("store", func(ctx context.Context) error { return errors.New("down") })
	checker.RegisterCriticalCheck("quota_tiers", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	names := checker.Names()
	if len(names) != 2 || names[0] != "quota_tiers" || names[1] != "store" {
		t.Errorf("Names() = %v, want [quota_tiers store]", names)
	}

	status := checker.CheckReadiness(context.Background())
	if status.Status != StatusReady {
		t.Errorf("status = %q, want ready after the failing check was replaced", status.Status)
	}
}

func TestCheckLiveness(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCriticalCheck("broken", func(ctx context.Context) error {
		t.Error("liveness must not run checks")
		return nil
	})

	status := checker.CheckLiveness(context.Background())
	if status.Status != StatusOK {
		t.Errorf("expected status %q, got %q", StatusOK, status.Status)
	}
}

func TestCheckReadiness(t *testing.T) {
	storeDown := errors.New("store ping: connection refused")

	tests := []struct {
		name       string
		register   func(c *Checker)
		wantStatus string
		wantServe  bool
	}{
		{
			name:       "no checks",
			register:   func(c *Checker) {},
			wantStatus: StatusReady,
			wantServe:  true,
		},
		{
			name: "all healthy",
			register: func(c *Checker) {
				c.RegisterCheck("store", func(ctx context.Context) error { return nil })
				c.RegisterCriticalCheck("config", func(ctx context.Context) error { return nil })
			},
			wantStatus: StatusReady,
			wantServe:  true,
		},
		{
			name: "store down is degraded",
			register: func(c *Checker) {
				c.RegisterCheck("store", func(ctx context.Context) error { return storeDown })
				c.RegisterCriticalCheck("config", func(ctx context.Context) error { return nil })
			},
			wantStatus: StatusDegraded,
			wantServe:  true,
		},
		{
			name: "critical failure is unhealthy",
			register: func(c *Checker) {
				c.RegisterCheck("store", func(ctx context.Context) error { return storeDown })
				c.RegisterCriticalCheck("config", func(ctx context.Context) error { return errors.New("no tiers") })
			},
			wantStatus: StatusUnhealthy,
			wantServe:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			tt.register(checker)

			status := checker.CheckReadiness(context.Background())
			if status.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status.Status, tt.wantStatus)
			}
			if status.Serving() != tt.wantServe {
				t.Errorf("Serving() = %v, want %v", status.Serving(), tt.wantServe)
			}
		})
	}
}

func TestCheckReadiness_ReportsFailure(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		return errors.New("store ping: connection refused")
	})

	status := checker.CheckReadiness(context.Background())
	result, ok := status.Checks["store"]
	if !ok {
		t.Fatal("missing store result")
	}
	if result.Status != StatusUnhealthy {
		t.Errorf("store status = %q", result.Status)
	}
	if result.Message != "store ping: connection refused" {
		t.Errorf("store message = %q", result.Message)
	}
	if result.Critical {
		t.Error("store check should not be critical")
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	checker := New(50 * time.Millisecond)

	// Ignores its context entirely.
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	})

	start := time.Now()
	status := checker.CheckReadiness(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("readiness took %v, want bounded by check timeout", elapsed)
	}

	if status.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("message = %q, want timeout", status.Checks["slow"].Message)
	}
	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", status.Status)
	}
}

func TestCheckReadiness_Concurrent(t *testing.T) {
	checker := New(time.Second)
	for _, name := range []string{"a", "b", "c", "d"} {
		checker.RegisterCheck(name, func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	status := checker.CheckReadiness(context.Background())
	if elapsed := time.Since(start); elapsed > 350*time.Millisecond {
		t.Errorf("checks did not run concurrently: %v", elapsed)
	}
	if len(status.Checks) != 4 {
		t.Errorf("results = %d, want 4", len(status.Checks))
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		critical   bool
		wantCode   int
		wantStatus string
	}{
		{name: "non-critical failure", critical: false, wantCode: http.StatusOK, wantStatus: StatusDegraded},
		{name: "critical failure", critical: true, wantCode: http.StatusServiceUnavailable, wantStatus: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			fail := func(ctx context.Context) error { return errors.New("down") }
			if tt.critical {
				checker.RegisterCriticalCheck("dep", fail)
			} else {
				checker.RegisterCheck("dep", fail)
			}

			rec := httptest.NewRecorder()
			checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	checker := New(time.Second)
	r := chi.NewRouter()
	checker.Routes(r, VersionInfo{Version: "1.2.3", Commit: "abc123"}, 0)

	for _, path := range []string{"/health", "/ready", "/version"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("GET %s Content-Type = %q", path, ct)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD /health = %d with %d body bytes", rec.Code, rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("version info = %+v", info)
	}
}

func TestRateLimitedHandler(t *testing.T) {
	var calls atomic.Int32
	handler := RateLimitedHandler(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}, rate.NewLimiter(rate.Every(time.Hour), 2))

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = rec.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}
