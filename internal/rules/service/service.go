package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"verethfier/internal/rules"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/platform/audit"
	"verethfier/pkg/platform/sentinel"
	"verethfier/pkg/requestcontext"
)

// Service is the administrative path for rules. The verification core only
// reads rules; creation, deletion and message backfill happen here.
type Service struct {
	store          rules.Store
	logger         *slog.Logger
	auditPublisher audit.Emitter
	newID          func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithIDGenerator overrides rule id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store rules.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("rule store is required")
	}
	s := &Service{store: store, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Create normalises defaults, fixes the rule kind and persists the rule.
// Exact duplicates are rejected; a different criterion for the same
// guild/channel/role is allowed and logged as a conflict.
func (s *Service) Create(ctx context.Context, rule rules.Rule) (*rules.Rule, error) {
	if err := validate(rule); err != nil {
		return nil, err
	}
	rule.Normalize()
	if rule.ID == "" {
		rule.ID = s.newID()
	}
	rule.CreatedAt = requestcontext.Now(ctx)
	rule.Kind = rules.Classify(rule)

	siblings, err := s.store.ListByRole(ctx, rule.GuildID, rule.ChannelID, rule.RoleID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing rules")
	}
	for _, existing := range siblings {
		if existing.DuplicateKey() == rule.DuplicateKey() {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("duplicate of rule %s", existing.ID))
		}
	}
	if len(siblings) > 0 {
		s.logger.WarnContext(ctx, "role already has rules with different criteria",
			"guild_id", rule.GuildID,
			"role_id", rule.RoleID,
			"existing_rules", len(siblings),
		)
	}

	if err := s.store.Create(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "duplicate rule")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create rule")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		GuildID: rule.GuildID,
		RoleID:  rule.RoleID,
		RuleID:  rule.ID,
		Action:  string(audit.EventRuleCreated),
		ActorID: requestcontext.AdminSubject(ctx),
	}, "rule_id", rule.ID, "rule_type", string(rule.Kind))
	return &rule, nil
}

func (s *Service) Get(ctx context.Context, id string) (*rules.Rule, error) {
	rule, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rule")
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context, guildID string) ([]rules.Rule, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "guild id is required")
	}
	out, err := s.store.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rules")
	}
	return out, nil
}

// Delete removes the rule. Assignments granted by it are revoked by the next
// reconciliation pass.
func (s *Service) Delete(ctx context.Context, id string) error {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete rule")
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		GuildID: rule.GuildID,
		RoleID:  rule.RoleID,
		RuleID:  rule.ID,
		Action:  string(audit.EventRuleDeleted),
		ActorID: requestcontext.AdminSubject(ctx),
	}, "rule_id", rule.ID)
	return nil
}

// BackfillMessageID attaches messageID to the channel's rules that have none,
// returning how many were updated.
func (s *Service) BackfillMessageID(ctx context.Context, guildID, channelID, messageID string) (int, error) {
	if guildID == "" || channelID == "" || messageID == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "guild id, channel id and message id are required")
	}
	channelRules, err := s.store.ListByChannel(ctx, guildID, channelID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list channel rules")
	}
	updated := 0
	for _, rule := range channelRules {
		if rule.MessageID != "" {
			continue
		}
		if err := s.store.SetMessageID(ctx, rule.ID, messageID); err != nil {
			return updated, dErrors.Wrap(err, dErrors.CodeInternal, "failed to backfill message id")
		}
		updated++
	}
	if updated > 0 {
		s.logger.InfoContext(ctx, "backfilled rule message id",
			"guild_id", guildID,
			"channel_id", channelID,
			"message_id", messageID,
			"rules", updated,
		)
	}
	return updated, nil
}

func validate(rule rules.Rule) error {
	if strings.TrimSpace(rule.GuildID) == "" {
		return dErrors.New(dErrors.CodeValidation, "guild id is required")
	}
	if strings.TrimSpace(rule.RoleID) == "" {
		return dErrors.New(dErrors.CodeValidation, "role id is required")
	}
	if rule.MinItems < 0 {
		return dErrors.New(dErrors.CodeValidation, "min items must not be negative")
	}
	return nil
}
