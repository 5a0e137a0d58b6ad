package types

import (
	"time"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

const (
	hintSignup  = "Stock signals update throughout the day as prices move. Don't miss the next shift!"
	hintUpgrade = "Markets don't wait. Upgrade for unlimited real-time analysis."
)

// RateLimitExceeded is the 429 body for an exhausted daily quota.
type RateLimitExceeded struct {
	Error          string      `json:"error"`
	Message        string      `json:"message"`
	Tier           limits.Tier `json:"tier"`
	Limit          int64       `json:"limit"`
	Remaining      int64       `json:"remaining"`
	ResetAt        *time.Time  `json:"reset_at"`
	SuggestUpgrade bool        `json:"suggest_upgrade"`
	UpgradeURL     *string     `json:"upgrade_url"`
	SignupURL      *string     `json:"signup_url"`
	Hint           string      `json:"hint"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Links are the conversion URLs offered on a rejection.
type Links struct {
	UpgradeURL string
	SignupURL  string
}

// NewRateLimitExceeded builds the rejection body for result. The signup link
// is only offered to anonymous callers.
func NewRateLimitExceeded(result limits.RateLimitResult, links Links, now time.Time) *RateLimitExceeded {
	body := &RateLimitExceeded{
		Error:          ErrorRateLimitExceeded,
		Message:        result.Message,
		Tier:           result.Tier,
		Limit:          result.Limit,
		Remaining:      result.Remaining,
		SuggestUpgrade: result.SuggestUpgrade,
		Hint:           hintUpgrade,
		Timestamp:      now.UTC(),
	}
	if result.ResetAt != nil {
		reset := result.ResetAt.UTC()
		body.ResetAt = &reset
	}
	if result.SuggestUpgrade && links.UpgradeURL != "" {
		body.UpgradeURL = &links.UpgradeURL
	}
	if result.Tier == limits.TierAnonymous {
		body.Hint = hintSignup
		if links.SignupURL != "" {
			body.SignupURL = &links.SignupURL
		}
	}
	return body
}
