package rules

import "context"

// Store persists rules. Implementations return sentinel.ErrNotFound for
// missing rows and sentinel.ErrConflict for duplicate criteria.
type Store interface {
	Create(ctx context.Context, rule Rule) error
	FindByID(ctx context.Context, id string) (*Rule, error)
	ListByGuild(ctx context.Context, guildID string) ([]Rule, error)
	ListByChannel(ctx context.Context, guildID, channelID string) ([]Rule, error)
	ListByMessage(ctx context.Context, guildID, messageID string) ([]Rule, error)
	ListByRole(ctx context.Context, guildID, channelID, roleID string) ([]Rule, error)
	SetMessageID(ctx context.Context, id, messageID string) error
	Delete(ctx context.Context, id string) error
}
