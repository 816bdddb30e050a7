// Package service runs the end-to-end verification flow: signed payload,
// nonce, rule selection, evaluation, grant.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"verethfier/internal/assignment"
	assignmentservice "verethfier/internal/assignment/service"
	"verethfier/internal/nonce"
	"verethfier/internal/ownership"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/rules"
	"verethfier/internal/signature"
	"verethfier/internal/verification"
	"verethfier/internal/verification/matcher"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/platform/audit"
)

const successMessage = "Verification successful"

type SignatureVerifier interface {
	Verify(payload signature.Payload, sig string) (string, error)
}

type NonceAuthority interface {
	Issue(ctx context.Context, ownerUserID, messageID, channelID string) (*nonce.Nonce, error)
	Verify(ctx context.Context, ownerUserID, value string) (*nonce.Nonce, error)
	Consume(ctx context.Context, ownerUserID, value string) error
}

// RuleSource selects the candidate rules for a request.
type RuleSource interface {
	ListByGuild(ctx context.Context, guildID string) ([]rules.Rule, error)
	ListByMessage(ctx context.Context, guildID, messageID string) ([]rules.Rule, error)
}

type Evaluator interface {
	VerifyRules(ctx context.Context, userID string, ruleSet []rules.Rule, address string) verification.BulkResult
}

type Granter interface {
	Grant(ctx context.Context, req assignmentservice.GrantRequest) (*assignment.Assignment, error)
}

// Service wires the verification ports together.
type Service struct {
	signatures     SignatureVerifier
	nonces         NonceAuthority
	rules          RuleSource
	engine         Evaluator
	granter        Granter
	logger         *slog.Logger
	auditPublisher audit.Emitter
	metrics        *metrics.Metrics
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

func New(signatures SignatureVerifier, nonces NonceAuthority, ruleSource RuleSource, engine Evaluator, granter Granter, opts ...Option) (*Service, error) {
	switch {
	case signatures == nil:
		return nil, errors.New("signature verifier is required")
	case nonces == nil:
		return nil, errors.New("nonce authority is required")
	case ruleSource == nil:
		return nil, errors.New("rule source is required")
	case engine == nil:
		return nil, errors.New("verification engine is required")
	case granter == nil:
		return nil, errors.New("granter is required")
	}
	s := &Service{
		signatures: signatures,
		nonces:     nonces,
		rules:      ruleSource,
		engine:     engine,
		granter:    granter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// StartVerification issues the nonce the chat UI embeds in the signing link.
func (s *Service) StartVerification(ctx context.Context, req StartRequest) (*StartResult, error) {
	n, err := s.nonces.Issue(ctx, strings.TrimSpace(req.UserID), req.MessageID, req.ChannelID)
	if err != nil {
		return nil, err
	}
	return &StartResult{Nonce: n.Value, ExpiresAt: n.ExpiresAt}, nil
}

// Verify checks the signed payload, burns the nonce, evaluates the rules in
// scope and grants every role the address qualifies for.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	data := req.Data

	address, err := s.signatures.Verify(signature.Payload{
		Address:   data.Address,
		UserID:    data.UserID,
		DiscordID: data.DiscordID,
		Nonce:     data.Nonce,
		Expiry:    data.Expiry,
	}, req.Signature)
	if err != nil {
		s.fail(ctx, data, audit.EventSignatureRejected, "signature", err)
		return nil, err
	}

	issued, err := s.nonces.Verify(ctx, data.UserID, data.Nonce)
	if err != nil {
		s.fail(ctx, data, audit.EventVerificationFailed, "nonce", err)
		return nil, err
	}
	if err := s.nonces.Consume(ctx, data.UserID, data.Nonce); err != nil {
		s.fail(ctx, data, audit.EventVerificationFailed, "nonce", err)
		return nil, err
	}

	candidates, err := s.selectRules(ctx, data.DiscordID, nonce.Context{MessageID: issued.MessageID, ChannelID: issued.ChannelID})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.fail(ctx, data, audit.EventVerificationFailed, "no_rules", nil)
		return nil, dErrors.New(dErrors.CodeNotFound, "no verification rules are configured for this server")
	}

	bulk := s.engine.VerifyRules(ctx, data.UserID, candidates, address)
	if len(bulk.ValidRules) == 0 {
		err := noQualifyingAssets(bulk.Results)
		s.fail(ctx, data, audit.EventVerificationFailed, "no_qualifying_assets", err)
		return nil, err
	}

	assigned, err := s.grantValid(ctx, data, address, candidates, bulk.Results)
	if err != nil {
		s.fail(ctx, data, audit.EventVerificationFailed, "role_platform", err)
		return nil, err
	}

	s.metrics.IncrementVerification("success")
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID:   data.UserID,
		GuildID:  data.DiscordID,
		Address:  address,
		Action:   string(audit.EventVerificationSucceeded),
		Decision: fmt.Sprintf("%d role(s) assigned", len(assigned)),
	}, "user_id", data.UserID, "address", address, "roles", len(assigned))

	roleIDs := make([]string, 0, len(assigned))
	for _, g := range assigned {
		roleIDs = append(roleIDs, g.RoleID)
	}
	return &VerifyResult{Message: successMessage, Address: address, AssignedRoles: roleIDs, Grants: assigned}, nil
}

// selectRules prefers rules bound to the originating message, then the
// channel's rules, then the whole guild.
func (s *Service) selectRules(ctx context.Context, guildID string, nctx nonce.Context) ([]rules.Rule, error) {
	if nctx.MessageID != "" {
		byMessage, err := s.rules.ListByMessage(ctx, guildID, nctx.MessageID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load message rules")
		}
		if len(byMessage) > 0 {
			return byMessage, nil
		}
	}
	byGuild, err := s.rules.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load server rules")
	}
	if nctx.ChannelID == "" || !slices.ContainsFunc(byGuild, func(r rules.Rule) bool { return r.ChannelID == nctx.ChannelID }) {
		return byGuild, nil
	}
	// The channel has its own rules: keep those plus the guild-wide ones.
	inScope := make([]rules.Rule, 0, len(byGuild))
	for _, r := range byGuild {
		if matcher.AppliesToChannel(r, nctx.ChannelID) {
			inScope = append(inScope, r)
		}
	}
	return inScope, nil
}

// grantValid grants each qualifying rule. Individual grant failures are
// logged; the call fails only when nothing could be granted.
func (s *Service) grantValid(ctx context.Context, data VerifyData, address string, candidates []rules.Rule, verdicts []verification.Verdict) ([]AssignedRole, error) {
	assigned := make([]AssignedRole, 0, len(verdicts))
	var lastErr error
	for i, v := range verdicts {
		if !v.IsValid {
			continue
		}
		rule := candidates[i]
		_, err := s.granter.Grant(ctx, assignmentservice.GrantRequest{
			UserID:    data.UserID,
			UserName:  data.UserTag,
			GuildID:   data.DiscordID,
			GuildName: data.DiscordName,
			RoleID:    rule.RoleID,
			RoleName:  rule.RoleName,
			RuleID:    rule.ID,
			Address:   address,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to grant role",
				"user_id", data.UserID,
				"rule_id", rule.ID,
				"role_id", rule.RoleID,
				"error", err,
			)
			lastErr = err
			continue
		}
		assigned = append(assigned, AssignedRole{RoleID: rule.RoleID, RoleName: rule.RoleName, RuleID: rule.ID})
	}
	if len(assigned) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return assigned, nil
}

func (s *Service) fail(ctx context.Context, data VerifyData, event audit.AuditEvent, outcome string, err error) {
	s.metrics.IncrementVerification(outcome)
	reason := outcome
	if err != nil {
		reason = dErrors.MessageOf(err)
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID:   data.UserID,
		GuildID:  data.DiscordID,
		Address:  strings.ToLower(data.Address),
		Action:   string(event),
		Decision: "denied",
		Reason:   reason,
	}, "user_id", data.UserID, "outcome", outcome)
}

// noQualifyingAssets names what the first failing rule wanted, so users can
// tell which asset they are missing. An unreachable index is reported as
// such instead.
func noQualifyingAssets(verdicts []verification.Verdict) error {
	allDeferred := len(verdicts) > 0
	for _, v := range verdicts {
		if !v.Deferred() {
			allDeferred = false
			break
		}
	}
	if allDeferred {
		return dErrors.New(dErrors.CodeUpstreamUnavailable, "ownership lookup is unavailable, please try again later")
	}
	for _, v := range verdicts {
		if v.IsValid || v.Deferred() {
			continue
		}
		return dErrors.New(dErrors.CodeNoQualifyingAssets, describeMissing(v.Details))
	}
	return dErrors.New(dErrors.CodeNoQualifyingAssets, "address does not hold the required assets")
}

func describeMissing(d verification.Details) string {
	collection := d.Collection
	if ownership.IsWildcard(collection) || collection == rules.LegacySlug {
		collection = "any collection"
	}
	msg := fmt.Sprintf("address holds %d of the %d required asset(s) from %s", d.FoundAssets, max(d.MinItems, 1), collection)
	switch {
	case ownership.IsWildcard(d.AttributeValue):
	case ownership.IsWildcard(d.AttributeKey):
		msg += fmt.Sprintf(" with an attribute equal to %s", d.AttributeValue)
	default:
		msg += fmt.Sprintf(" with %s=%s", d.AttributeKey, d.AttributeValue)
	}
	return msg
}
