package quota

import (
	"strconv"
	"strings"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

// TierPolicy is the quota applied to one tier.
type TierPolicy struct {
	// Limit is the daily quota, or limits.Unlimited.
	Limit int64

	// UpgradeTo is the tier suggested on denial. Empty when there is none.
	UpgradeTo limits.Tier

	// Message overrides the generated denial message.
	// {limit} and {next_limit} are substituted.
	Message string
}

// Unlimited reports whether the tier has no cap.
func (p TierPolicy) Unlimited() bool {
	return p.Limit == limits.Unlimited
}

// TierTable maps tiers to policies. It is immutable once built; the engine
// swaps whole tables on reload.
type TierTable struct {
	policies map[limits.Tier]TierPolicy
}

// NewTierTable builds a table. The anonymous tier must be present; it is
// used for every tier the table does not know.
func NewTierTable(policies map[limits.Tier]TierPolicy) *TierTable {
	copied := make(map[limits.Tier]TierPolicy, len(policies)+1)
	for tier, p := range policies {
		copied[tier] = p
	}
	if _, ok := copied[limits.TierAnonymous]; !ok {
		copied[limits.TierAnonymous] = TierPolicy{Limit: config.DefaultAnonymousLimit, UpgradeTo: limits.TierFree}
	}
	return &TierTable{policies: copied}
}

// DefaultTierTable returns anonymous 3, free 10, pro and premium unlimited.
func DefaultTierTable() *TierTable {
	return TiersFromConfig(config.QuotaConfig{Tiers: config.DefaultTiers()})
}

// TiersFromConfig builds a table from the quota configuration.
func TiersFromConfig(cfg config.QuotaConfig) *TierTable {
	policies := make(map[limits.Tier]TierPolicy, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		policies[limits.ParseTier(name)] = TierPolicy{
			Limit:     t.DailyLimit,
			UpgradeTo: limits.Tier(t.UpgradeTo),
			Message:   t.Message,
		}
	}
	return NewTierTable(policies)
}

// Lookup returns the policy for tier and the tier it was resolved to.
// Unknown tiers resolve to anonymous, the most restrictive tier.
func (t *TierTable) Lookup(tier limits.Tier) (TierPolicy, limits.Tier) {
	if p, ok := t.policies[tier]; ok {
		return p, tier
	}
	return t.policies[limits.TierAnonymous], limits.TierAnonymous
}

// Has reports whether tier is configured.
func (t *TierTable) Has(tier limits.Tier) bool {
	_, ok := t.policies[tier]
	return ok
}

// DenialMessage returns the friendly message shown when tier is exhausted,
// and whether an upgrade path exists.
func (t *TierTable) DenialMessage(tier limits.Tier) (string, bool) {
	policy, tier := t.Lookup(tier)

	var (
		next    TierPolicy
		hasNext bool
	)
	if policy.UpgradeTo != "" {
		next, hasNext = t.policies[policy.UpgradeTo]
	}

	if policy.Message != "" {
		r := strings.NewReplacer(
			"{limit}", strconv.FormatInt(policy.Limit, 10),
			"{next_limit}", strconv.FormatInt(next.Limit, 10),
		)
		return r.Replace(policy.Message), hasNext
	}

	limit := strconv.FormatInt(policy.Limit, 10)

	switch {
	case !hasNext:
		return "You've used all " + limit + " of your daily analyses. Your limit resets at midnight UTC.", false

	case tier == limits.TierAnonymous && !next.Unlimited():
		return "You've hit your daily limit of " + limit + " free analyses. " +
			"Markets are moving, and prices and signals update throughout the day. " +
			"Sign up free for " + strconv.FormatInt(next.Limit, 10) + " daily analyses and never miss a signal shift!", true

	case next.Unlimited():
		return "You've used all " + limit + " of your daily analyses. " +
			"Stock prices change by the minute. Upgrade to " + displayName(policy.UpgradeTo) +
			" for unlimited real-time analysis, or wait until tomorrow when your limit resets.", true

	default:
		return "You've used all " + limit + " of your daily analyses. " +
			"Upgrade to " + displayName(policy.UpgradeTo) + " for " +
			strconv.FormatInt(next.Limit, 10) + " analyses per day, or wait until tomorrow when your limit resets.", true
	}
}

func displayName(t limits.Tier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
