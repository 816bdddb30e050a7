package admin

import (
	"verethfier/internal/rules"
	dErrors "verethfier/pkg/domain-errors"
)

// CreateRuleRequest is the body of POST /admin/rules. Omitted criteria
// default to the wildcard and min_items to 1.
type CreateRuleRequest struct {
	GuildID        string `json:"guild_id"`
	GuildName      string `json:"guild_name"`
	ChannelID      string `json:"channel_id"`
	ChannelName    string `json:"channel_name"`
	RoleID         string `json:"role_id"`
	RoleName       string `json:"role_name"`
	Slug           string `json:"slug"`
	AttributeKey   string `json:"attribute_key"`
	AttributeValue string `json:"attribute_value"`
	MinItems       int    `json:"min_items"`
	MessageID      string `json:"message_id"`
}

func (r CreateRuleRequest) ToRule() rules.Rule {
	return rules.Rule{
		GuildID:        r.GuildID,
		GuildName:      r.GuildName,
		ChannelID:      r.ChannelID,
		ChannelName:    r.ChannelName,
		RoleID:         r.RoleID,
		RoleName:       r.RoleName,
		Slug:           r.Slug,
		AttributeKey:   r.AttributeKey,
		AttributeValue: r.AttributeValue,
		MinItems:       r.MinItems,
		MessageID:      r.MessageID,
	}
}

// BackfillRequest attaches a posted verification message to a channel's rules.
type BackfillRequest struct {
	MessageID string `json:"message_id"`
}

func (r BackfillRequest) Validate() error {
	if r.MessageID == "" {
		return dErrors.New(dErrors.CodeValidation, "message_id is required")
	}
	return nil
}
