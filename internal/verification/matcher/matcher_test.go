package matcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"verethfier/internal/ownership"
	"verethfier/internal/rules"
)

func asset(slug string, attrs map[string]string) ownership.Asset {
	return ownership.Asset{Slug: slug, Attributes: attrs}
}

func TestMatches_SlugWildcardLaw(t *testing.T) {
	snapshots := [][]ownership.Asset{
		{asset("punks", nil)},
		{asset("apes", map[string]string{"fur": "gold"}), asset("punks", nil)},
		{asset("x", nil), asset("y", nil), asset("z", nil)},
	}
	for _, slug := range []string{"", "ALL"} {
		for i, assets := range snapshots {
			t.Run(fmt.Sprintf("slug=%q/snapshot=%d", slug, i), func(t *testing.T) {
				rule := rules.Rule{Slug: slug, MinItems: 1}
				assert.True(t, Matches(rule, assets, ""))
			})
		}
	}
}

func TestMatches_Slug(t *testing.T) {
	assets := []ownership.Asset{asset("apes", nil)}
	assert.False(t, Matches(rules.Rule{Slug: "punks", MinItems: 1}, assets, ""))
	assert.True(t, Matches(rules.Rule{Slug: "apes", MinItems: 1}, assets, ""))
}

func TestMatches_Channel(t *testing.T) {
	assets := []ownership.Asset{asset("punks", nil)}
	rule := rules.Rule{Slug: "punks", ChannelID: "chan-1", MinItems: 1}

	assert.True(t, Matches(rule, assets, "chan-1"))
	assert.False(t, Matches(rule, assets, "chan-2"))

	rule.ChannelID = ""
	assert.True(t, Matches(rule, assets, "anything"))
}

func TestAppliesToChannel(t *testing.T) {
	assert.True(t, AppliesToChannel(rules.Rule{ChannelID: "chan-1"}, "chan-1"))
	assert.False(t, AppliesToChannel(rules.Rule{ChannelID: "chan-1"}, "chan-2"))
	assert.False(t, AppliesToChannel(rules.Rule{ChannelID: "chan-1"}, ""))
	assert.True(t, AppliesToChannel(rules.Rule{}, "chan-2"))
	assert.True(t, AppliesToChannel(rules.Rule{}, ""))
}

func TestMatches_MinItemsBoundary(t *testing.T) {
	for _, minItems := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("min=%d", minItems), func(t *testing.T) {
			rule := rules.Rule{Slug: "punks", MinItems: minItems}
			exact := make([]ownership.Asset, minItems)
			for i := range exact {
				exact[i] = asset("punks", nil)
			}
			assert.True(t, Matches(rule, exact, ""))
			assert.False(t, Matches(rule, exact[:minItems-1], ""))
		})
	}
}

func TestMatches_MinItemsBelowOneNeverMatches(t *testing.T) {
	assets := []ownership.Asset{asset("punks", nil), asset("punks", nil)}
	assert.False(t, Matches(rules.Rule{Slug: "punks", MinItems: 0}, assets, ""))
	assert.False(t, Matches(rules.Rule{Slug: "punks", MinItems: -1}, assets, ""))
}

func TestMatches_CaseInsensitiveAttribute(t *testing.T) {
	rule := rules.Rule{AttributeKey: "Trait", AttributeValue: "Rare", MinItems: 1}
	assets := []ownership.Asset{asset("", map[string]string{"trait": "rare"})}
	assert.True(t, Matches(rule, assets, ""))
}

func TestMatchingAssets_Attributes(t *testing.T) {
	tests := []struct {
		name     string
		criteria ownership.Criteria
		assets   []ownership.Asset
		want     int
	}{
		{
			name:     "wildcard value skips attribute check",
			criteria: ownership.Criteria{AttributeKey: "background", AttributeValue: "ALL"},
			assets:   []ownership.Asset{asset("a", nil), asset("b", nil)},
			want:     2,
		},
		{
			name:     "empty value skips attribute check",
			criteria: ownership.Criteria{AttributeKey: "background"},
			assets:   []ownership.Asset{asset("a", nil)},
			want:     1,
		},
		{
			name:     "ALL key matches value under any key",
			criteria: ownership.Criteria{AttributeKey: "ALL", AttributeValue: "gold"},
			assets: []ownership.Asset{
				asset("a", map[string]string{"fur": "Gold"}),
				asset("a", map[string]string{"eyes": "gold"}),
				asset("a", map[string]string{"fur": "brown"}),
			},
			want: 2,
		},
		{
			name:     "upper case key variant",
			criteria: ownership.Criteria{AttributeKey: "hat", AttributeValue: "crown"},
			assets:   []ownership.Asset{asset("a", map[string]string{"HAT": "Crown"})},
			want:     1,
		},
		{
			name:     "first non-empty variant wins",
			criteria: ownership.Criteria{AttributeKey: "hat", AttributeValue: "crown"},
			assets: []ownership.Asset{
				asset("a", map[string]string{"hat": "crown"}),
				asset("a", map[string]string{"Hat": "crown"}),
			},
			want: 1,
		},
		{
			name:     "slug restricts before attributes",
			criteria: ownership.Criteria{Slug: "punks", AttributeKey: "background", AttributeValue: "blue"},
			assets: []ownership.Asset{
				asset("punks", map[string]string{"background": "blue"}),
				asset("apes", map[string]string{"background": "blue"}),
			},
			want: 1,
		},
		{
			name:     "no match",
			criteria: ownership.Criteria{AttributeKey: "background", AttributeValue: "red"},
			assets:   []ownership.Asset{asset("a", map[string]string{"background": "blue"})},
			want:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, MatchingAssets(tt.criteria, tt.assets), tt.want)
		})
	}
}

func TestMatches_ScenarioB(t *testing.T) {
	rule := rules.Rule{Slug: "punks", AttributeKey: "background", AttributeValue: "blue", MinItems: 2}
	assets := []ownership.Asset{
		asset("punks", map[string]string{"background": "blue"}),
		asset("punks", map[string]string{"background": "Blue"}),
		asset("punks", map[string]string{"background": "red"}),
	}

	assert.Len(t, MatchingAssets(rule.Criteria(), assets), 2)
	assert.True(t, Matches(rule, assets, ""))
}

func TestMatches_VariantSearchStopsAtFirstHit(t *testing.T) {
	rule := rules.Rule{AttributeKey: "background", AttributeValue: "blue", MinItems: 2}
	assets := []ownership.Asset{
		asset("punks", map[string]string{"background": "blue"}),
		asset("punks", map[string]string{"Background": "blue"}),
	}

	// The as-given key already matches one asset, so the Capitalized key is never consulted.
	assert.Len(t, MatchingAssets(rule.Criteria(), assets), 1)
	assert.False(t, Matches(rule, assets, ""))
}
