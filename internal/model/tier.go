package model

import "strings"

// Tier is the ordered risk category derived from a visit's latest prediction.
// Lower rank sorts first in the queue.
type Tier string

const (
	TierHigh         Tier = "HIGH"
	TierMedium       Tier = "MEDIUM"
	TierLow          Tier = "LOW"
	TierUnclassified Tier = "UNCLASSIFIED"
)

// tierRanks defines the canonical total order of tiers.
var tierRanks = map[Tier]int{
	TierHigh:         1,
	TierMedium:       2,
	TierLow:          3,
	TierUnclassified: 4,
}

// Rank returns the tier's position in the queue ordering (HIGH=1 first).
func (t Tier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return tierRanks[TierUnclassified]
}

// TierOf maps a prediction's risk label to its tier. It is total: any label
// outside the LOW/MEDIUM/HIGH enum (including empty, meaning no prediction
// exists) resolves to UNCLASSIFIED. Unknown labels are a data-quality anomaly
// to be logged by the caller, not an error.
func TierOf(label string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(label))) {
	case TierHigh:
		return TierHigh
	case TierMedium:
		return TierMedium
	case TierLow:
		return TierLow
	default:
		return TierUnclassified
	}
}

// ParseRiskLevel validates a caller-supplied risk filter value against the
// LOW/MEDIUM/HIGH enum. UNCLASSIFIED is not a valid filter value: the queue
// filter restricts to classified tiers only.
func ParseRiskLevel(s string) (Tier, bool) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case TierHigh, TierMedium, TierLow:
		return t, true
	default:
		return "", false
	}
}
