package admin

import (
	"time"

	"verethfier/internal/assignment"
	"verethfier/internal/rules"
)

// RuleResponse is the HTTP response DTO for a rule.
type RuleResponse struct {
	ID             string    `json:"id"`
	GuildID        string    `json:"guild_id"`
	GuildName      string    `json:"guild_name,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	ChannelName    string    `json:"channel_name,omitempty"`
	RoleID         string    `json:"role_id"`
	RoleName       string    `json:"role_name,omitempty"`
	Slug           string    `json:"slug"`
	AttributeKey   string    `json:"attribute_key"`
	AttributeValue string    `json:"attribute_value"`
	MinItems       int       `json:"min_items"`
	MessageID      string    `json:"message_id,omitempty"`
	Kind           string    `json:"rule_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// RulesListResponse wraps the rules of a guild.
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
	Total int            `json:"total"`
}

// AssignmentResponse is the HTTP response DTO for a role assignment.
type AssignmentResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	GuildID       string     `json:"guild_id"`
	RoleID        string     `json:"role_id"`
	RuleID        string     `json:"rule_id,omitempty"`
	Address       string     `json:"address"`
	Status        string     `json:"status"`
	VerifiedAt    time.Time  `json:"verified_at"`
	LastCheckedAt time.Time  `json:"last_checked_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type AssignmentsListResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
	Total       int                  `json:"total"`
}

// BackfillResponse reports how many rules received the message id.
type BackfillResponse struct {
	Updated int `json:"updated"`
}

func NewRuleResponse(r rules.Rule) RuleResponse {
	return RuleResponse{
		ID:             r.ID,
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
		Kind:           string(r.EffectiveKind()),
		CreatedAt:      r.CreatedAt,
	}
}

func NewRulesListResponse(list []rules.Rule) RulesListResponse {
	out := RulesListResponse{Rules: make([]RuleResponse, 0, len(list)), Total: len(list)}
	for _, r := range list {
		out.Rules = append(out.Rules, NewRuleResponse(r))
	}
	return out
}

func NewAssignmentsListResponse(list []assignment.Assignment) AssignmentsListResponse {
	out := AssignmentsListResponse{Assignments: make([]AssignmentResponse, 0, len(list)), Total: len(list)}
	for _, a := range list {
		out.Assignments = append(out.Assignments, AssignmentResponse{
			ID:            a.ID.String(),
			UserID:        a.UserID,
			GuildID:       a.GuildID,
			RoleID:        a.RoleID,
			RuleID:        a.RuleID,
			Address:       a.Address,
			Status:        string(a.Status),
			VerifiedAt:    a.VerifiedAt,
			LastCheckedAt: a.LastCheckedAt,
			ExpiresAt:     a.ExpiresAt,
		})
	}
	return out
}
