package limits

import (
	"strings"
	"time"
)

// Tier is a subscription level. Each tier maps to a daily quota in the
// quota engine's tier table.
type Tier string

const (
	// TierAnonymous is used for callers without an account. It is also the
	// fallback for every resolution failure.
	TierAnonymous Tier = "anonymous"

	// TierFree is a signed-up account without a paid plan.
	TierFree Tier = "free"

	// TierPro is a paid plan. Unlimited by default.
	TierPro Tier = "pro"

	// TierPremium is a paid plan. Unlimited by default.
	TierPremium Tier = "premium"
)

// Unlimited is the limit and remaining sentinel for tiers without a cap.
const Unlimited int64 = -1

// ParseTier normalizes a tier name. Empty input resolves to anonymous.
func ParseTier(s string) Tier {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TierAnonymous
	}
	return Tier(s)
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// RateLimitResult is the outcome of a quota check.
//
// When Allowed is true, Remaining is >= 0 for limited tiers and -1 for
// unlimited tiers. When Allowed is false, Remaining is 0 and Message is set.
type RateLimitResult struct {
	// Allowed indicates if the request may proceed.
	Allowed bool

	// Tier is the tier the decision was made for.
	Tier Tier

	// Remaining is the number of requests left today, or -1 when unlimited.
	Remaining int64

	// Limit is the daily quota, or -1 when unlimited.
	Limit int64

	// ResetAt is the next UTC midnight. Nil for unlimited tiers.
	ResetAt *time.Time

	// Message is the tier-specific upgrade message on denial.
	Message string

	// SuggestUpgrade is true when the caller should be pointed at a higher tier.
	SuggestUpgrade bool

	// Degraded is true when the decision was made without the shared store
	// (fail-open).
	Degraded bool
}

// Unlimited reports whether the result belongs to an uncapped tier.
func (r RateLimitResult) Unlimited() bool {
	return r.Limit == Unlimited
}

// RetryAfter returns the time until the quota resets, relative to now.
// Zero when there is no reset time.
func (r RateLimitResult) RetryAfter(now time.Time) time.Duration {
	if r.ResetAt == nil {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Usage is the admin view of one identity's consumption today.
type Usage struct {
	Tier      Tier       `json:"tier"`
	Identity  string     `json:"identity"`
	Used      int64      `json:"used"`
	Limit     int64      `json:"limit"`
	Remaining int64      `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at"`
}

// NextUTCMidnight returns the start of the UTC day following t.
func NextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
