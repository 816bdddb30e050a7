package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"verethfier/internal/rules"
	dErrors "verethfier/pkg/domain-errors"
)

// Status of a grant. Expired and revoked are terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Assignment is a persisted grant of one role to one user, monitored by the
// reconciler. Display names are for audit and UI only.
type Assignment struct {
	ID            uuid.UUID
	UserID        string
	UserName      string
	GuildID       string
	GuildName     string
	RoleID        string
	RoleName      string
	RuleID        string // empty for legacy grants
	Address       string // lower-cased
	Status        Status
	VerifiedAt    time.Time
	LastCheckedAt time.Time
	ExpiresAt     *time.Time
}

// NewActive builds a fresh active assignment.
func NewActive(id uuid.UUID, userID, guildID, roleID, ruleID, address string, now time.Time) (*Assignment, error) {
	if userID == "" || guildID == "" || roleID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user, guild and role are required")
	}
	if address == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "address is required")
	}
	return &Assignment{
		ID:            id,
		UserID:        userID,
		GuildID:       guildID,
		RoleID:        roleID,
		RuleID:        ruleID,
		Address:       address,
		Status:        StatusActive,
		VerifiedAt:    now,
		LastCheckedAt: now,
	}, nil
}

func (a *Assignment) IsTerminal() bool {
	return a.Status == StatusExpired || a.Status == StatusRevoked
}

// IsLegacy reports whether the grant predates rules: no rule id, or the
// reserved legacy marker.
func (a *Assignment) IsLegacy() bool {
	return a.RuleID == "" || a.RuleID == rules.LegacyRuleID
}

// IsDue reports whether an active assignment needs a check at now.
func (a *Assignment) IsDue(now time.Time, staleness time.Duration) bool {
	if a.Status != StatusActive {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return true
	}
	return !a.LastCheckedAt.After(now.Add(-staleness))
}

// MarkChecked records a successful re-check.
func (a *Assignment) MarkChecked(now time.Time) error {
	if err := a.requireActive("check"); err != nil {
		return err
	}
	a.LastCheckedAt = now
	return nil
}

// Refresh records a fresh verification of an existing active grant.
func (a *Assignment) Refresh(address string, now time.Time) error {
	if err := a.requireActive("refresh"); err != nil {
		return err
	}
	a.Address = address
	a.VerifiedAt = now
	a.LastCheckedAt = now
	return nil
}

// Revoke marks the role as removed from the platform.
func (a *Assignment) Revoke(now time.Time) error {
	if err := a.requireActive("revoke"); err != nil {
		return err
	}
	a.Status = StatusRevoked
	a.LastCheckedAt = now
	return nil
}

// Expire marks a disqualified grant whose platform removal failed.
func (a *Assignment) Expire(now time.Time) error {
	if err := a.requireActive("expire"); err != nil {
		return err
	}
	a.Status = StatusExpired
	a.LastCheckedAt = now
	return nil
}

func (a *Assignment) requireActive(op string) error {
	if a.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot "+op+" "+string(a.Status)+" assignment")
	}
	return nil
}

// Store persists assignments. Update refuses to change a terminal record
// (sentinel.ErrInvalidState); lookups return sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, a *Assignment) error
	Update(ctx context.Context, a *Assignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	FindActive(ctx context.Context, userID, guildID, roleID, ruleID string) (*Assignment, error)
	ListDue(ctx context.Context, now time.Time, staleness time.Duration) ([]Assignment, error)
	ListActiveByUser(ctx context.Context, userID string) ([]Assignment, error)
	ListActiveByRule(ctx context.Context, ruleID string) ([]Assignment, error)
	ListExpiredSince(ctx context.Context, since time.Time) ([]Assignment, error)
	ListByUser(ctx context.Context, userID string) ([]Assignment, error)
}
