package roleplatform

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/suite"

	dErrors "verethfier/pkg/domain-errors"
)

type fakeSession struct {
	added     []string
	removed   []string
	member    *discordgo.Member
	addErr    error
	removeErr error
	memberErr error
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.added = append(f.added, guildID+"/"+userID+"/"+roleID)
	return f.addErr
}

func (f *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.removed = append(f.removed, guildID+"/"+userID+"/"+roleID)
	return f.removeErr
}

func (f *fakeSession) GuildMember(_, _ string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	return f.member, f.memberErr
}

func unknownMember() error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMember, Message: "Unknown Member"},
	}
}

type DiscordPlatformSuite struct {
	suite.Suite
	session  *fakeSession
	platform *DiscordPlatform
	ctx      context.Context
}

func TestDiscordPlatformSuite(t *testing.T) {
	suite.Run(t, new(DiscordPlatformSuite))
}

func (s *DiscordPlatformSuite) SetupTest() {
	s.session = &fakeSession{}
	var err error
	s.platform, err = NewDiscord(s.session)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *DiscordPlatformSuite) TestNew() {
	_, err := NewDiscord(nil)
	s.ErrorContains(err, "discord session is required")

	_, err = NewDiscordSession("")
	s.ErrorContains(err, "discord bot token is required")
}

func (s *DiscordPlatformSuite) TestAddRole() {
	s.Run("success", func() {
		s.Require().NoError(s.platform.AddRole(s.ctx, "g", "u", "r"))
		s.Equal([]string{"g/u/r"}, s.session.added)
	})

	s.Run("failure maps to role platform error", func() {
		s.session.addErr = errors.New("missing permissions")
		err := s.platform.AddRole(s.ctx, "g", "u", "r")
		s.True(dErrors.HasCode(err, dErrors.CodeRolePlatform))
	})
}

func (s *DiscordPlatformSuite) TestRemoveRole() {
	s.Run("member left the guild", func() {
		s.session.removeErr = unknownMember()
		s.NoError(s.platform.RemoveRole(s.ctx, "g", "u", "r"))
	})

	s.Run("other failures surface", func() {
		s.session.removeErr = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
		err := s.platform.RemoveRole(s.ctx, "g", "u", "r")
		s.True(dErrors.HasCode(err, dErrors.CodeRolePlatform))
	})
}

func (s *DiscordPlatformSuite) TestHasRole() {
	s.Run("role present", func() {
		s.session.member = &discordgo.Member{Roles: []string{"a", "r"}}
		has, err := s.platform.HasRole(s.ctx, "g", "u", "r")
		s.Require().NoError(err)
		s.True(has)
	})

	s.Run("role absent", func() {
		s.session.member = &discordgo.Member{Roles: []string{"a"}}
		has, err := s.platform.HasRole(s.ctx, "g", "u", "r")
		s.Require().NoError(err)
		s.False(has)
	})

	s.Run("unknown member holds nothing", func() {
		s.session.member = nil
		s.session.memberErr = unknownMember()
		has, err := s.platform.HasRole(s.ctx, "g", "u", "r")
		s.Require().NoError(err)
		s.False(has)
	})

	s.Run("transport failure", func() {
		s.session.memberErr = errors.New("connection reset")
		_, err := s.platform.HasRole(s.ctx, "g", "u", "r")
		s.True(dErrors.HasCode(err, dErrors.CodeRolePlatform))
	})
}
