package roleplatform

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/bwmarrin/discordgo"

	dErrors "verethfier/pkg/domain-errors"
)

// Session is the subset of *discordgo.Session the adapter calls.
type Session interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

// DiscordPlatform applies role changes through the Discord REST API.
type DiscordPlatform struct {
	session Session
	logger  *slog.Logger
}

type DiscordOption func(*DiscordPlatform)

func WithLogger(logger *slog.Logger) DiscordOption {
	return func(p *DiscordPlatform) {
		p.logger = logger
	}
}

func NewDiscord(session Session, opts ...DiscordOption) (*DiscordPlatform, error) {
	if session == nil {
		return nil, errors.New("discord session is required")
	}
	p := &DiscordPlatform{session: session}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewDiscordSession builds a REST-only bot session.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord bot token is required")
	}
	return discordgo.New("Bot " + token)
}

func (p *DiscordPlatform) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := p.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRolePlatform, "failed to add role")
	}
	return nil
}

// RemoveRole succeeds when the member already left the guild.
func (p *DiscordPlatform) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	err := p.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}
	if isUnknownMember(err) {
		if p.logger != nil {
			p.logger.InfoContext(ctx, "member left guild before role removal",
				"guild_id", guildID, "user_id", userID, "role_id", roleID)
		}
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeRolePlatform, "failed to remove role")
}

func (p *DiscordPlatform) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	member, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeRolePlatform, "failed to load member")
	}
	return slices.Contains(member.Roles, roleID), nil
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
