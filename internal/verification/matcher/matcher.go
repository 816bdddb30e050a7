// Package matcher evaluates one rule against an address's asset snapshot.
// It does no I/O.
package matcher

import (
	"strings"

	"verethfier/internal/ownership"
	"verethfier/internal/rules"
)

// Matches reports whether assets satisfy rule in the given channel context.
// Slug, channel, attribute and count checks are ANDed.
func Matches(rule rules.Rule, assets []ownership.Asset, contextChannelID string) bool {
	if !AppliesToChannel(rule, contextChannelID) {
		return false
	}
	if !ownership.IsWildcard(rule.Slug) && !anySlug(assets, rule.Slug) {
		return false
	}
	return meetsMinimum(len(MatchingAssets(rule.Criteria(), assets)), rule.MinItems)
}

// AppliesToChannel reports whether rule is in scope for channelID. A rule
// without a channel applies in every channel of its guild.
func AppliesToChannel(rule rules.Rule, channelID string) bool {
	return rule.ChannelID == "" || rule.ChannelID == channelID
}

// MatchingAssets returns the assets satisfying the slug and attribute parts
// of criteria. The count requirement is left to the caller.
func MatchingAssets(criteria ownership.Criteria, assets []ownership.Asset) []ownership.Asset {
	candidates := assets
	if !ownership.IsWildcard(criteria.Slug) {
		candidates = filter(assets, func(a ownership.Asset) bool { return a.Slug == criteria.Slug })
	}
	if !attributeEnforced(criteria) {
		return candidates
	}
	if criteria.AttributeKey == ownership.Wildcard {
		return filter(candidates, func(a ownership.Asset) bool {
			return anyValue(a.Attributes, criteria.AttributeValue)
		})
	}
	for _, key := range keyVariants(criteria.AttributeKey) {
		matched := filter(candidates, func(a ownership.Asset) bool {
			v, ok := a.Attributes[key]
			return ok && strings.EqualFold(v, criteria.AttributeValue)
		})
		if len(matched) > 0 {
			return matched
		}
	}
	return nil
}

// MeetsMinimum applies the count policy shared with the engine: a minimum
// below one can never be met.
func MeetsMinimum(count, minItems int) bool {
	return meetsMinimum(count, minItems)
}

func meetsMinimum(count, minItems int) bool {
	if minItems < 1 {
		return false
	}
	return count >= minItems
}

// attributeEnforced is true only when both key and value are present and the
// value is not a wildcard. A wildcard key with a concrete value still
// enforces: the value must appear under any key.
func attributeEnforced(c ownership.Criteria) bool {
	return c.AttributeKey != "" && c.AttributeValue != "" && c.AttributeValue != ownership.Wildcard
}

// keyVariants yields as-given, Capitalized, lower and UPPER, deduplicated.
func keyVariants(key string) []string {
	candidates := []string{key, capitalize(key), strings.ToLower(key), strings.ToUpper(key)}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, k := range candidates {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func anySlug(assets []ownership.Asset, slug string) bool {
	for _, a := range assets {
		if a.Slug == slug {
			return true
		}
	}
	return false
}

func anyValue(attrs map[string]string, value string) bool {
	for _, v := range attrs {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func filter(assets []ownership.Asset, keep func(ownership.Asset) bool) []ownership.Asset {
	out := make([]ownership.Asset, 0, len(assets))
	for _, a := range assets {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
