// Package engine produces verification verdicts by combining persisted rules
// with live ownership counts. It holds no state between calls and never
// returns an error: failures become invalid verdicts.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"verethfier/internal/ownership"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/rules"
	"verethfier/internal/verification"
	"verethfier/internal/verification/matcher"
	"verethfier/pkg/platform/sentinel"
)

// RuleReader is the read-only view of the rule store the engine needs.
type RuleReader interface {
	FindByID(ctx context.Context, id string) (*rules.Rule, error)
	ListByGuild(ctx context.Context, guildID string) ([]rules.Rule, error)
}

const defaultBulkConcurrency = 4

// Engine evaluates rules for an address.
type Engine struct {
	rules           RuleReader
	oracle          ownership.Oracle
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	bulkConcurrency int
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithBulkConcurrency bounds parallel rule checks within one bulk call.
func WithBulkConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bulkConcurrency = n
		}
	}
}

func New(ruleReader RuleReader, oracle ownership.Oracle, opts ...Option) (*Engine, error) {
	if ruleReader == nil {
		return nil, errors.New("rule store is required")
	}
	if oracle == nil {
		return nil, errors.New("ownership oracle is required")
	}
	e := &Engine{
		rules:           ruleReader,
		oracle:          oracle,
		tracer:          otel.Tracer("verethfier/verification/engine"),
		bulkConcurrency: defaultBulkConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// VerifyUser loads ruleID and evaluates it for address.
func (e *Engine) VerifyUser(ctx context.Context, userID, ruleID, address string) verification.Verdict {
	ctx, span := e.tracer.Start(ctx, "engine.VerifyUser", trace.WithAttributes(
		attribute.String("rule.id", ruleID),
	))
	defer span.End()

	rule, err := e.rules.FindByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v := verification.Verdict{
				RuleID:   ruleID,
				RuleType: verification.RuleTypeUnknown,
				Error:    "not found",
				Reason:   verification.ReasonRuleNotFound,
			}
			e.record(ctx, span, userID, v)
			return v
		}
		e.logger.ErrorContext(ctx, "failed to load rule", "rule_id", ruleID, "user_id", userID, "error", err)
		v := verification.Verdict{
			RuleID:   ruleID,
			RuleType: verification.RuleTypeError,
			Error:    err.Error(),
			Reason:   verification.ReasonRuleStore,
		}
		e.record(ctx, span, userID, v)
		return v
	}
	return e.evaluate(ctx, span, userID, *rule, address)
}

// VerifyRule evaluates an already loaded rule.
func (e *Engine) VerifyRule(ctx context.Context, userID string, rule rules.Rule, address string) verification.Verdict {
	ctx, span := e.tracer.Start(ctx, "engine.VerifyRule", trace.WithAttributes(
		attribute.String("rule.id", rule.ID),
	))
	defer span.End()
	return e.evaluate(ctx, span, userID, rule, address)
}

// VerifyLegacyHolder checks the legacy criterion (any asset at all) for
// grants that predate rules.
func (e *Engine) VerifyLegacyHolder(ctx context.Context, userID, address string) verification.Verdict {
	ctx, span := e.tracer.Start(ctx, "engine.VerifyLegacyHolder")
	defer span.End()
	legacy := rules.Rule{ID: rules.LegacyRuleID, Kind: rules.KindLegacy}
	return e.evaluate(ctx, span, userID, legacy, address)
}

// VerifyUserBulk evaluates each rule id independently; one failure does not
// affect the others. Results keep the order of ruleIDs.
func (e *Engine) VerifyUserBulk(ctx context.Context, userID string, ruleIDs []string, address string) verification.BulkResult {
	start := time.Now()
	defer func() { e.metrics.ObserveEngineLatency("bulk", time.Since(start)) }()

	verdicts := make([]verification.Verdict, len(ruleIDs))
	e.fanOut(ctx, len(ruleIDs), func(ctx context.Context, i int) {
		verdicts[i] = e.VerifyUser(ctx, userID, ruleIDs[i], address)
	})
	return verification.NewBulkResult(verdicts)
}

// VerifyRules is the bulk form for preloaded rules.
func (e *Engine) VerifyRules(ctx context.Context, userID string, ruleSet []rules.Rule, address string) verification.BulkResult {
	verdicts := make([]verification.Verdict, len(ruleSet))
	e.fanOut(ctx, len(ruleSet), func(ctx context.Context, i int) {
		verdicts[i] = e.VerifyRule(ctx, userID, ruleSet[i], address)
	})
	return verification.NewBulkResult(verdicts)
}

// VerifyUserForServer evaluates every rule of the guild.
func (e *Engine) VerifyUserForServer(ctx context.Context, userID, guildID, address string) verification.BulkResult {
	ctx, span := e.tracer.Start(ctx, "engine.VerifyUserForServer", trace.WithAttributes(
		attribute.String("guild.id", guildID),
	))
	defer span.End()

	guildRules, err := e.rules.ListByGuild(ctx, guildID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list guild rules")
		e.logger.ErrorContext(ctx, "failed to list guild rules", "guild_id", guildID, "user_id", userID, "error", err)
		return verification.NewBulkResult([]verification.Verdict{{
			RuleType: verification.RuleTypeError,
			Error:    err.Error(),
			Reason:   verification.ReasonRuleStore,
		}})
	}
	return e.VerifyRules(ctx, userID, guildRules, address)
}

func (e *Engine) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.bulkConcurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) evaluate(ctx context.Context, span trace.Span, userID string, rule rules.Rule, address string) verification.Verdict {
	start := time.Now()
	defer func() { e.metrics.ObserveEngineLatency("verify_rule", time.Since(start)) }()

	kind := rule.EffectiveKind()
	v := verification.Verdict{RuleID: rule.ID}

	var criteria ownership.Criteria
	switch kind {
	case rules.KindLegacy:
		v.RuleType = verification.RuleTypeLegacy
		criteria = ownership.Criteria{
			Slug:           ownership.Wildcard,
			AttributeKey:   ownership.Wildcard,
			AttributeValue: ownership.Wildcard,
			MinItems:       1,
		}
	case rules.KindModern:
		v.RuleType = verification.RuleTypeModern
		criteria = rule.Criteria()
	default:
		v.RuleType = verification.RuleTypeUnknown
		v.Error = "unknown rule type"
		v.Reason = verification.ReasonUnknownRuleType
		e.record(ctx, span, userID, v)
		return v
	}

	v.Details = verification.Details{
		Collection:     criteria.Slug,
		AttributeKey:   criteria.AttributeKey,
		AttributeValue: criteria.AttributeValue,
		MinItems:       criteria.MinItems,
	}
	span.SetAttributes(
		attribute.String("rule.type", string(v.RuleType)),
		attribute.String("criteria.slug", criteria.Slug),
		attribute.Int("criteria.min_items", criteria.MinItems),
	)

	count, err := e.oracle.CountOwned(ctx, ownership.NormalizeAddress(address), criteria)
	if err != nil {
		v.Error = err.Error()
		v.Reason = verification.ReasonOwnershipQuery
		e.logger.WarnContext(ctx, "ownership query failed",
			"rule_id", rule.ID,
			"user_id", userID,
			"error", err,
		)
		e.record(ctx, span, userID, v)
		return v
	}

	v.MatchingAssetCount = count
	v.Details.FoundAssets = count
	v.IsValid = matcher.MeetsMinimum(count, criteria.MinItems)
	e.record(ctx, span, userID, v)
	return v
}

func (e *Engine) record(ctx context.Context, span trace.Span, userID string, v verification.Verdict) {
	span.SetAttributes(
		attribute.Bool("verdict.valid", v.IsValid),
		attribute.Int("verdict.matching_assets", v.MatchingAssetCount),
	)
	if v.Error != "" {
		span.SetStatus(codes.Error, v.Error)
	}
	e.metrics.IncrementVerdict(string(v.RuleType), v.IsValid)
	e.logger.DebugContext(ctx, "verdict",
		"rule_id", v.RuleID,
		"user_id", userID,
		"rule_type", string(v.RuleType),
		"valid", v.IsValid,
		"matching_assets", v.MatchingAssetCount,
	)
}
