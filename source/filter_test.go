package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/budgetlens/policy-engine/source"
)

func TestKeywordFilter_DefaultVocabulary(t *testing.T) {
	f := source.NewKeywordFilter()

	assert.True(t, f.Match("GST on EV chargers reduced to 5%", ""))
	assert.True(t, f.Match("Cabinet approves LPG subsidy extension", ""))
	assert.True(t, f.Match("Highway projects inaugurated", "New toll structure announced for NH-48"))
	assert.True(t, f.Match("RBI keeps REPO RATE unchanged", ""))

	assert.False(t, f.Match("PM inaugurates new museum wing", "Cultural exchange programme"))
	assert.False(t, f.Match("Condolences on the passing of noted historian", ""))
}

func TestKeywordFilter_CustomKeywordsCaseInsensitive(t *testing.T) {
	f := source.NewKeywordFilter("Broadband", "spectrum")

	assert.True(t, f.Match("BROADBAND rollout in rural districts", ""))
	assert.True(t, f.Match("Auction of telecom Spectrum concluded", ""))
	assert.False(t, f.Match("GST council meets today", "")) // default vocabulary replaced
}
