package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierOf_KnownLabels(t *testing.T) {
	assert.Equal(t, TierHigh, TierOf("HIGH"))
	assert.Equal(t, TierMedium, TierOf("MEDIUM"))
	assert.Equal(t, TierLow, TierOf("LOW"))
}

func TestTierOf_CaseAndWhitespace(t *testing.T) {
	assert.Equal(t, TierHigh, TierOf("high"))
	assert.Equal(t, TierMedium, TierOf("  Medium "))
	assert.Equal(t, TierLow, TierOf("low\n"))
}

func TestTierOf_UnknownLabelsMapToUnclassified(t *testing.T) {
	for _, label := range []string{"", "CRITICAL", "SEVERE", "none", "42"} {
		assert.Equal(t, TierUnclassified, TierOf(label), "label %q", label)
	}
}

func TestTierRank_TotalOrder(t *testing.T) {
	assert.Less(t, TierHigh.Rank(), TierMedium.Rank())
	assert.Less(t, TierMedium.Rank(), TierLow.Rank())
	assert.Less(t, TierLow.Rank(), TierUnclassified.Rank())

	// Unknown tier values sort with UNCLASSIFIED.
	assert.Equal(t, TierUnclassified.Rank(), Tier("BOGUS").Rank())
}

func TestParseRiskLevel(t *testing.T) {
	tier, ok := ParseRiskLevel("high")
	assert.True(t, ok)
	assert.Equal(t, TierHigh, tier)

	tier, ok = ParseRiskLevel(" MEDIUM ")
	assert.True(t, ok)
	assert.Equal(t, TierMedium, tier)

	for _, s := range []string{"", "UNCLASSIFIED", "urgent", "hi"} {
		_, ok := ParseRiskLevel(s)
		assert.False(t, ok, "value %q", s)
	}
}

func TestPatientDisplayName(t *testing.T) {
	p := Patient{FirstName: "Ann", LastName: "Lee"}
	assert.Equal(t, "Ann Lee", p.DisplayName())
}
