package types

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

func TestNewRateLimitExceeded(t *testing.T) {
	reset := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
	links := Links{UpgradeURL: "https://example.com/pricing", SignupURL: "https://example.com/sign-up"}

	t.Run("anonymous gets signup link", func(t *testing.T) {
		body := NewRateLimitExceeded(limits.RateLimitResult{
			Tier:           limits.TierAnonymous,
			Limit:          3,
			ResetAt:        &reset,
			Message:        "Sign up",
			SuggestUpgrade: true,
		}, links, now)

		if body.Error != ErrorRateLimitExceeded {
			t.Errorf("Expected error code %q, got %q", ErrorRateLimitExceeded, body.Error)
		}
		if body.SignupURL == nil || *body.SignupURL != links.SignupURL {
			t.Errorf("Expected signup url, got %v", body.SignupURL)
		}
		if body.Hint != hintSignup {
			t.Errorf("unexpected hint %q", body.Hint)
		}
	})

	t.Run("free gets upgrade link only", func(t *testing.T) {
		body := NewRateLimitExceeded(limits.RateLimitResult{
			Tier:           limits.TierFree,
			Limit:          10,
			ResetAt:        &reset,
			SuggestUpgrade: true,
		}, links, now)

		if body.SignupURL != nil {
			t.Errorf("Expected no signup url for free tier, got %q", *body.SignupURL)
		}
		if body.UpgradeURL == nil {
			t.Error("Expected upgrade url")
		}
		if body.Hint != hintUpgrade {
			t.Errorf("unexpected hint %q", body.Hint)
		}
	})
}

func TestRateLimitExceeded_JSON(t *testing.T) {
	reset := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	body := NewRateLimitExceeded(limits.RateLimitResult{
		Tier:    limits.TierFree,
		Limit:   10,
		ResetAt: &reset,
	}, Links{}, reset.Add(-time.Hour))

	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusTooManyRequests, body)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var decoded map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"error", "message", "tier", "limit", "remaining", "reset_at", "suggest_upgrade", "upgrade_url", "signup_url", "hint", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected key %q in body", key)
		}
	}
	if decoded["reset_at"] != "2025-01-16T00:00:00Z" {
		t.Errorf("unexpected reset_at %v", decoded["reset_at"])
	}
	if decoded["upgrade_url"] != nil {
		t.Errorf("Expected null upgrade_url without suggestion, got %v", decoded["upgrade_url"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, ErrorNotFound, "The requested endpoint does not exist")

	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Error != ErrorNotFound || body.Timestamp.IsZero() {
		t.Errorf("unexpected body %+v", body)
	}
}
