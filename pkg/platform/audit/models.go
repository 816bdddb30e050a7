package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers grant lifecycle changes: the audit trail of who
	// held which role, on what proof, and when it was taken away.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers failed proofs and replay attempts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as nonce issuance and sweeps.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    string        `json:"user_id"`
	GuildID   string        `json:"guild_id,omitempty"`
	RoleID    string        `json:"role_id,omitempty"`
	RuleID    string        `json:"rule_id,omitempty"`
	Address   string        `json:"address,omitempty"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	// ActorID tracks who performed the action when different from UserID,
	// e.g. an administrator triggering reverification or the reconciler.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Verification events
	EventNonceIssued           AuditEvent = "nonce_issued"
	EventVerificationSucceeded AuditEvent = "verification_succeeded"
	EventVerificationFailed    AuditEvent = "verification_failed"
	EventNonceRejected         AuditEvent = "nonce_rejected"
	EventSignatureRejected     AuditEvent = "signature_rejected"

	// Grant lifecycle events
	EventRoleGranted AuditEvent = "role_granted"
	EventRoleRevoked AuditEvent = "role_revoked"
	EventRoleExpired AuditEvent = "role_expired"

	// Rule administration events
	EventRuleCreated AuditEvent = "rule_created"
	EventRuleDeleted AuditEvent = "rule_deleted"

	// Reconciliation events
	EventSweepCompleted AuditEvent = "reverification_sweep_completed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRoleGranted: CategoryCompliance,
	EventRoleRevoked: CategoryCompliance,
	EventRoleExpired: CategoryCompliance,
	EventRuleCreated: CategoryCompliance,
	EventRuleDeleted: CategoryCompliance,

	EventVerificationFailed: CategorySecurity,
	EventNonceRejected:      CategorySecurity,
	EventSignatureRejected:  CategorySecurity,

	EventNonceIssued:           CategoryOperations,
	EventVerificationSucceeded: CategoryOperations,
	EventSweepCompleted:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
}

// Sink receives a copy of every persisted event (e.g. a Kafka topic).
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
