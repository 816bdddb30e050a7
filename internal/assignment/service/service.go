package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"verethfier/internal/assignment"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/roleplatform"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/platform/audit"
	"verethfier/pkg/platform/sentinel"
	"verethfier/pkg/requestcontext"
)

// GrantRequest names the role to grant and the proof it rests on.
type GrantRequest struct {
	UserID    string
	UserName  string
	GuildID   string
	GuildName string
	RoleID    string
	RoleName  string
	RuleID    string
	Address   string
}

// Service applies grants on the role platform and records them.
type Service struct {
	store          assignment.Store
	platform       roleplatform.Platform
	logger         *slog.Logger
	auditPublisher audit.Emitter
	metrics        *metrics.Metrics
	newID          func() uuid.UUID
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store assignment.Store, platform roleplatform.Platform, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("assignment store is required")
	}
	if platform == nil {
		return nil, errors.New("role platform is required")
	}
	s := &Service{store: store, platform: platform, newID: uuid.New}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Grant adds the role on the platform, then refreshes the matching active
// assignment or creates one. Nothing is recorded when the platform refuses.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*assignment.Assignment, error) {
	req.Address = strings.ToLower(strings.TrimSpace(req.Address))
	now := requestcontext.Now(ctx)

	if err := s.platform.AddRole(ctx, req.GuildID, req.UserID, req.RoleID); err != nil {
		s.logger.ErrorContext(ctx, "failed to add role",
			"user_id", req.UserID,
			"guild_id", req.GuildID,
			"role_id", req.RoleID,
			"error", err,
		)
		if dErrors.HasCode(err, dErrors.CodeRolePlatform) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRolePlatform, "failed to add role")
	}

	a, err := s.upsert(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementRolesGranted()
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID:  req.UserID,
		GuildID: req.GuildID,
		RoleID:  req.RoleID,
		RuleID:  req.RuleID,
		Address: req.Address,
		Action:  string(audit.EventRoleGranted),
		ActorID: requestcontext.AdminSubject(ctx),
	}, "user_id", req.UserID, "assignment_id", a.ID.String(), "verified_at", now)
	return a, nil
}

func (s *Service) upsert(ctx context.Context, req GrantRequest) (*assignment.Assignment, error) {
	now := requestcontext.Now(ctx)
	existing, err := s.store.FindActive(ctx, req.UserID, req.GuildID, req.RoleID, req.RuleID)
	switch {
	case err == nil:
		if err := existing.Refresh(req.Address, now); err != nil {
			return nil, err
		}
		applyNames(existing, req)
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh assignment")
		}
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assignment")
	}

	a, err := assignment.NewActive(s.newID(), req.UserID, req.GuildID, req.RoleID, req.RuleID, req.Address, now)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	applyNames(a, req)
	if err := s.store.Create(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record assignment")
	}
	return a, nil
}

// History lists every assignment of a user, terminal ones included.
func (s *Service) History(ctx context.Context, userID string) ([]assignment.Assignment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	out, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
	}
	return out, nil
}

func applyNames(a *assignment.Assignment, req GrantRequest) {
	if req.UserName != "" {
		a.UserName = req.UserName
	}
	if req.GuildName != "" {
		a.GuildName = req.GuildName
	}
	if req.RoleName != "" {
		a.RoleName = req.RoleName
	}
}
