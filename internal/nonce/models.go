package nonce

import (
	"context"
	"time"
)

// Nonce binds one verification attempt to the user and the message/channel
// it was started from.
type Nonce struct {
	Value       string    `json:"value"`
	OwnerUserID string    `json:"owner_user_id"`
	MessageID   string    `json:"message_id,omitempty"`
	ChannelID   string    `json:"channel_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the nonce is no longer usable at now.
func (n Nonce) IsExpired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// Context is the correlation data a nonce carries.
type Context struct {
	MessageID string
	ChannelID string
}

// Store keeps at most one nonce per owner. Get and Delete return
// sentinel.ErrNotFound when the owner has no live nonce.
type Store interface {
	Save(ctx context.Context, n Nonce, ttl time.Duration) error
	Get(ctx context.Context, ownerUserID string, now time.Time) (*Nonce, error)
	// Delete removes the owner's nonce only while it still holds value.
	// Anything else, including a newer nonce, reports sentinel.ErrNotFound.
	Delete(ctx context.Context, ownerUserID, value string) error
}
