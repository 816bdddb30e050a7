package rules

import (
	"strconv"
	"strings"
	"time"

	"verethfier/internal/ownership"
)

// Kind is the stored discriminant of a rule.
type Kind string

const (
	KindLegacy  Kind = "legacy"
	KindModern  Kind = "modern"
	KindUnknown Kind = "unknown"
)

// Reserved values that mark rules created under the legacy scheme.
const (
	LegacySlug         = "legacy_collection"
	LegacyAttributeKey = "legacy_attribute"
	LegacyRuleID       = "legacy"
)

// DefaultMinItems is applied when a rule is created without a minimum.
const DefaultMinItems = 1

// Rule is one way to earn one role.
type Rule struct {
	ID             string
	GuildID        string
	GuildName      string
	ChannelID      string
	ChannelName    string
	RoleID         string
	RoleName       string
	Slug           string
	AttributeKey   string
	AttributeValue string
	MinItems       int
	MessageID      string
	Kind           Kind
	CreatedAt      time.Time
}

// Criteria returns the oracle query for the rule's own targeting fields.
func (r Rule) Criteria() ownership.Criteria {
	return ownership.Criteria{
		Slug:           r.Slug,
		AttributeKey:   r.AttributeKey,
		AttributeValue: r.AttributeValue,
		MinItems:       r.MinItems,
	}
}

// DuplicateKey is the uniqueness tuple. Two rules with the same key are duplicates.
func (r Rule) DuplicateKey() string {
	return strings.Join([]string{
		r.GuildID, r.ChannelID, r.RoleID, r.Slug, r.AttributeKey, r.AttributeValue,
		strconv.Itoa(r.MinItems),
	}, "\x00")
}

// Normalize fills defaults for unset targeting fields.
func (r *Rule) Normalize() {
	r.GuildID = strings.TrimSpace(r.GuildID)
	r.ChannelID = strings.TrimSpace(r.ChannelID)
	r.RoleID = strings.TrimSpace(r.RoleID)
	if strings.TrimSpace(r.Slug) == "" {
		r.Slug = ownership.Wildcard
	}
	if strings.TrimSpace(r.AttributeKey) == "" {
		r.AttributeKey = ownership.Wildcard
	}
	if strings.TrimSpace(r.AttributeValue) == "" {
		r.AttributeValue = ownership.Wildcard
	}
	if r.MinItems == 0 {
		r.MinItems = DefaultMinItems
	}
}

// EffectiveKind returns the stored discriminant, classifying rows that predate it.
func (r Rule) EffectiveKind() Kind {
	if r.Kind == KindLegacy || r.Kind == KindModern {
		return r.Kind
	}
	return Classify(r)
}

// Classify decides the rule kind from its fields. It runs once at creation;
// the result is persisted.
func Classify(r Rule) Kind {
	if r.Slug == LegacySlug || r.AttributeKey == LegacyAttributeKey || r.ID == LegacyRuleID {
		return KindLegacy
	}
	// Any targeting criterion (a valid slug included) makes the rule modern.
	if r.Slug != "" || r.AttributeKey != "" || r.AttributeValue != "" || r.MinItems != 0 {
		return KindModern
	}
	return KindUnknown
}
