// Package roleplatform mutates roles on the chat platform.
package roleplatform

import "context"

// Platform adds, removes and checks a member's role in a guild.
// Implementations return CodeRolePlatform domain errors.
type Platform interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
}
