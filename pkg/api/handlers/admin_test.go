package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/types"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/quota"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/throttle"
)

const adminToken = "s3cret-admin-token"

var adminNow = time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

type failingUsage struct{ err error }

func (f failingUsage) Usage(context.Context, limits.Tier, string) (limits.Usage, error) {
	return limits.Usage{}, f.err
}

func (f failingUsage) Reset(context.Context, limits.Tier, string) error { return f.err }

func newAdminFixture(t *testing.T, cfg config.AdminConfig) (http.Handler, *quota.Engine) {
	t.Helper()

	mem := storage.NewMemoryBackendWithConfig(storage.MemoryBackendConfig{})
	t.Cleanup(func() { mem.Close() })

	engine := quota.NewEngine(mem, quota.DefaultTierTable(),
		quota.WithClock(func() time.Time { return adminNow }))
	thr := throttle.New(nil, throttle.Config{Name: "yahoo", Capacity: 10, RefillRate: 1})

	return NewAdminHandler(cfg, engine, thr, nil).Routes(), engine
}

func adminRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdminHandler_Auth(t *testing.T) {
	h, _ := newAdminFixture(t, config.AdminConfig{Enabled: true, Token: adminToken})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + adminToken, http.StatusUnauthorized},
		{"valid", "Bearer " + adminToken, http.StatusOK},
		{"lowercase scheme", "bearer " + adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/throttle", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAdminHandler_EmptyTokenRejectsEverything(t *testing.T) {
	h, _ := newAdminFixture(t, config.AdminConfig{Enabled: true})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/throttle", "anything"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminHandler_UsageAndReset(t *testing.T) {
	h, engine := newAdminFixture(t, config.AdminConfig{Enabled: true, Token: adminToken})
	ctx := context.Background()

	engine.Record(ctx, limits.TierFree, "user:42")
	engine.Record(ctx, limits.TierFree, "user:42")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/usage/free/user:42", adminToken))
	require.Equal(t, http.StatusOK, rec.Code)

	var usage limits.Usage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, limits.TierFree, usage.Tier)
	assert.Equal(t, "user:42", usage.Identity)
	assert.Equal(t, int64(2), usage.Used)
	assert.Equal(t, config.DefaultFreeLimit, usage.Limit)
	assert.Equal(t, config.DefaultFreeLimit-2, usage.Remaining)
	require.NotNil(t, usage.ResetAt)
	assert.True(t, limits.NextUTCMidnight(adminNow).Equal(*usage.ResetAt))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodDelete, "/usage/free/user:42", adminToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"reset"`)

	after, err := engine.Usage(ctx, limits.TierFree, "user:42")
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Used)
}

func TestAdminHandler_UsageUnlimitedTier(t *testing.T) {
	h, _ := newAdminFixture(t, config.AdminConfig{Enabled: true, Token: adminToken})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/usage/PRO/user:7", adminToken))
	require.Equal(t, http.StatusOK, rec.Code)

	var usage limits.Usage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, limits.TierPro, usage.Tier)
	assert.Equal(t, limits.Unlimited, usage.Limit)
	assert.Nil(t, usage.ResetAt)
}

func TestAdminHandler_EscapedIdentity(t *testing.T) {
	h, engine := newAdminFixture(t, config.AdminConfig{Enabled: true, Token: adminToken})
	engine.Record(context.Background(), limits.TierAnonymous, "ip:2001:db8::1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/usage/anonymous/ip%3A2001%3Adb8%3A%3A1", adminToken))
	require.Equal(t, http.StatusOK, rec.Code)

	var usage limits.Usage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, "ip:2001:db8::1", usage.Identity)
	assert.Equal(t, int64(1), usage.Used)
}

func TestAdminHandler_StoreErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"invalid identity", limits.ErrInvalidIdentity, http.StatusBadRequest, types.ErrorBadRequest},
		{"invalid tier", limits.ErrInvalidTier, http.StatusBadRequest, types.ErrorBadRequest},
		{"store down", &limits.StoreError{Op: "get", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable, types.ErrorStoreUnavailable},
		{"unexpected", assert.AnError, http.StatusInternalServerError, types.ErrorInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(config.AdminConfig{Token: adminToken}, failingUsage{err: tt.err}, nil, nil).Routes()

			for _, method := range []string{http.MethodGet, http.MethodDelete} {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, adminRequest(method, "/usage/free/user:1", adminToken))
				assert.Equal(t, tt.want, rec.Code, method)

				var body types.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Error)
			}
		})
	}
}

func TestAdminHandler_ThrottleStats(t *testing.T) {
	h, _ := newAdminFixture(t, config.AdminConfig{Enabled: true, Token: adminToken})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/throttle", adminToken))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats throttle.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "yahoo", stats.Name)
	assert.Equal(t, throttle.ModeLocal, stats.Mode)
	assert.Equal(t, float64(10), stats.Capacity)
	assert.Equal(t, int64(-1), stats.RequestsThisHour)
}

func TestAdminHandler_ThrottleNotConfigured(t *testing.T) {
	h := NewAdminHandler(config.AdminConfig{Token: adminToken}, failingUsage{}, nil, nil).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/throttle", adminToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminHandler_RateLimited(t *testing.T) {
	h, _ := newAdminFixture(t, config.AdminConfig{
		Enabled:           true,
		Token:             adminToken,
		RequestsPerSecond: 0.001,
		Burst:             2,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, adminRequest(http.MethodGet, "/throttle", adminToken))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAdminHandler_RejectedCallersDoNotSpendBudget(t *testing.T) {
	h, _ := newAdminFixture(t, config.AdminConfig{
		Enabled:           true,
		Token:             adminToken,
		RequestsPerSecond: 0.01,
		Burst:             1,
	})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, adminRequest(http.MethodGet, "/throttle", "wrong-token"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest(http.MethodGet, "/throttle", adminToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}
