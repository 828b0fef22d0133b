// Package credits holds the static tier/cost tables and the pure functions
// deciding balances and credit period rollover.
package credits

import (
	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
)

// EnterpriseAllotment is large enough to never be reached in a period.
const EnterpriseAllotment = 1_000_000

// MaxSlides bounds the slide multiplier of a single presentation.
const MaxSlides = 50

// TierLimits maps a tier to its monthly credit allotment.
var TierLimits = map[domain.Tier]int{
	domain.TierFree:       20,
	domain.TierBasic:      50,
	domain.TierPro:        200,
	domain.TierEnterprise: EnterpriseAllotment,
}

// ActionCosts maps an action to its per-unit cost. Presentations are charged
// per slide by the caller through the multiplier.
var ActionCosts = map[domain.ActionType]int{
	domain.ActionDiagram:      1,
	domain.ActionLetter:       1,
	domain.ActionCoverLetter:  1,
	domain.ActionATSCheck:     1,
	domain.ActionResume:       1,
	domain.ActionPresentation: 1,
}

// TierNames are the display names returned to clients.
var TierNames = map[domain.Tier]string{
	domain.TierFree:       "Free",
	domain.TierBasic:      "Basic",
	domain.TierPro:        "Pro",
	domain.TierEnterprise: "Enterprise",
}

// TierFeatures lists what each tier unlocks.
var TierFeatures = map[domain.Tier][]string{
	domain.TierFree: {
		"20 credits per month",
		"Resume and letter generation",
		"Basic templates",
	},
	domain.TierBasic: {
		"50 credits per month",
		"All document types",
		"ATS analysis",
	},
	domain.TierPro: {
		"200 credits per month",
		"All document types",
		"Presentations up to 50 slides",
		"Priority generation",
	},
	domain.TierEnterprise: {
		"Unlimited credits",
		"All document types",
		"Dedicated support",
	},
}

// Limit returns the allotment for a tier, falling back to the free tier.
func Limit(tier domain.Tier) int {
	if limit, ok := TierLimits[tier]; ok {
		return limit
	}
	return TierLimits[domain.TierFree]
}

// Cost returns the per-unit cost of an action. Unknown actions cost 1.
func Cost(action domain.ActionType) int {
	if cost, ok := ActionCosts[action]; ok {
		return cost
	}
	return 1
}

// Required computes cost * multiplier; a zero multiplier means one unit.
func Required(action domain.ActionType, multiplier int) int {
	if multiplier <= 0 {
		multiplier = 1
	}
	return Cost(action) * multiplier
}

// CostTable returns a copy of ActionCosts keyed by string for JSON output.
func CostTable() map[string]int {
	out := make(map[string]int, len(ActionCosts))
	for action, cost := range ActionCosts {
		out[string(action)] = cost
	}
	return out
}
