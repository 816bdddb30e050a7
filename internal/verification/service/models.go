package service

import (
	"strings"
	"time"

	dErrors "verethfier/pkg/domain-errors"
)

// VerifyData is the signed payload plus display fields from the chat UI.
// DiscordID is the guild the user is verifying in.
type VerifyData struct {
	Address     string `json:"address"`
	UserID      string `json:"userId"`
	UserTag     string `json:"userTag"`
	Avatar      string `json:"avatar"`
	DiscordID   string `json:"discordId"`
	DiscordName string `json:"discordName"`
	DiscordIcon string `json:"discordIcon"`
	Nonce       string `json:"nonce"`
	Expiry      int64  `json:"expiry"`
}

type VerifyRequest struct {
	Data      VerifyData `json:"data"`
	Signature string     `json:"signature"`
}

func (r *VerifyRequest) Normalize() {
	r.Data.Address = strings.TrimSpace(r.Data.Address)
	r.Data.UserID = strings.TrimSpace(r.Data.UserID)
	r.Data.DiscordID = strings.TrimSpace(r.Data.DiscordID)
	r.Data.Nonce = strings.TrimSpace(r.Data.Nonce)
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *VerifyRequest) Validate() error {
	switch {
	case r.Data.Address == "":
		return dErrors.New(dErrors.CodeValidation, "address is required")
	case r.Data.UserID == "":
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	case r.Data.DiscordID == "":
		return dErrors.New(dErrors.CodeValidation, "discordId is required")
	case r.Data.Nonce == "":
		return dErrors.New(dErrors.CodeValidation, "nonce is required")
	case r.Data.Expiry <= 0:
		return dErrors.New(dErrors.CodeValidation, "expiry is required")
	case r.Signature == "":
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	return nil
}

// AssignedRole is one role granted by a verification, with the rule that granted it.
type AssignedRole struct {
	RoleID   string `json:"roleId"`
	RoleName string `json:"roleName,omitempty"`
	RuleID   string `json:"ruleId"`
}

// VerifyResult is the success body. AssignedRoles carries role ids only;
// Grants has the per-rule detail.
type VerifyResult struct {
	Message       string         `json:"message"`
	Address       string         `json:"address"`
	AssignedRoles []string       `json:"assignedRoles"`
	Grants        []AssignedRole `json:"grants,omitempty"`
}

type StartRequest struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

type StartResult struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}
