// Package reconcile re-checks persisted role grants against live ownership
// and removes roles whose proof no longer holds.
//
// The failure policy is conservative: only an explicit sub-threshold count
// or a deleted rule revokes. An unreachable ownership index defers the check
// to the next sweep.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"verethfier/internal/assignment"
	assignmentservice "verethfier/internal/assignment/service"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/roleplatform"
	"verethfier/internal/rules"
	"verethfier/internal/verification"
	"verethfier/pkg/platform/audit"
)

const (
	DefaultBatchSize   = 10
	DefaultBatchDelay  = time.Second
	DefaultStaleness   = 6 * time.Hour
	DefaultRetryWindow = 72 * time.Hour

	actorReconciler = "reconciler"
)

// Verifier is the slice of the verification engine the reconciler calls.
type Verifier interface {
	VerifyUser(ctx context.Context, userID, ruleID, address string) verification.Verdict
	VerifyLegacyHolder(ctx context.Context, userID, address string) verification.Verdict
	VerifyRules(ctx context.Context, userID string, ruleSet []rules.Rule, address string) verification.BulkResult
}

// Granter records grants for newly qualifying rules.
type Granter interface {
	Grant(ctx context.Context, req assignmentservice.GrantRequest) (*assignment.Assignment, error)
}

// RuleLister lists a guild's rules for the grant-new pass.
type RuleLister interface {
	ListByGuild(ctx context.Context, guildID string) ([]rules.Rule, error)
}

// Outcome of one assignment check.
type Outcome string

const (
	OutcomeStillValid Outcome = "still_valid"
	OutcomeRevoked    Outcome = "revoked"
	OutcomeExpired    Outcome = "expired"
	OutcomeDeferred   Outcome = "deferred"
	OutcomeFailed     Outcome = "failed"
)

// SweepResult counts what a pass did. Checked is the number of assignments
// examined; the outcome counters partition it.
type SweepResult struct {
	Checked         int `json:"checked"`
	StillValid      int `json:"stillValid"`
	Revoked         int `json:"revoked"`
	Expired         int `json:"expired"`
	Deferred        int `json:"deferred"`
	Failed          int `json:"failed"`
	Granted         int `json:"granted"`
	RetriedRemovals int `json:"retriedRemovals"`
}

func (r *SweepResult) add(o Outcome) {
	r.Checked++
	switch o {
	case OutcomeStillValid:
		r.StillValid++
	case OutcomeRevoked:
		r.Revoked++
	case OutcomeExpired:
		r.Expired++
	case OutcomeDeferred:
		r.Deferred++
	default:
		r.Failed++
	}
}

// Reconciler runs sweeps and on-demand re-checks.
type Reconciler struct {
	store          assignment.Store
	verifier       Verifier
	platform       roleplatform.Platform
	logger         *slog.Logger
	auditPublisher audit.Emitter
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error

	batchSize   int
	batchDelay  time.Duration
	staleness   time.Duration
	retryWindow time.Duration

	granter    Granter
	ruleLister RuleLister
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(r *Reconciler) {
		r.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Reconciler) {
		r.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithSleep replaces the inter-batch wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reconciler) {
		r.sleep = sleep
	}
}

func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithBatchDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.batchDelay = d
		}
	}
}

func WithStaleness(d time.Duration) Option {
	return func(r *Reconciler) {
		r.staleness = d
	}
}

// WithRetryWindow bounds how long expired assignments keep getting removal
// retries. Zero disables the retry pass.
func WithRetryWindow(d time.Duration) Option {
	return func(r *Reconciler) {
		r.retryWindow = d
	}
}

// WithGrantNewRules makes sweeps grant guild rules the user newly qualifies for.
func WithGrantNewRules(lister RuleLister, granter Granter) Option {
	return func(r *Reconciler) {
		r.ruleLister = lister
		r.granter = granter
	}
}

func New(store assignment.Store, verifier Verifier, platform roleplatform.Platform, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("assignment store is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if platform == nil {
		return nil, errors.New("role platform is required")
	}
	r := &Reconciler{
		store:       store,
		verifier:    verifier,
		platform:    platform,
		tracer:      otel.Tracer("verethfier/reconcile"),
		now:         time.Now,
		sleep:       sleepContext,
		batchSize:   DefaultBatchSize,
		batchDelay:  DefaultBatchDelay,
		staleness:   DefaultStaleness,
		retryWindow: DefaultRetryWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// RunScheduledReverification checks every due active assignment, retries
// failed removals, and optionally grants newly qualifying rules.
func (r *Reconciler) RunScheduledReverification(ctx context.Context) (SweepResult, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.Sweep")
	defer span.End()
	start := r.now()

	due, err := r.store.ListDue(ctx, start, r.staleness)
	if err != nil {
		span.RecordError(err)
		return SweepResult{}, fmt.Errorf("list due assignments: %w", err)
	}
	r.logger.InfoContext(ctx, "reverification sweep started", "due", len(due))

	result, stillValid := r.process(ctx, due)
	result.RetriedRemovals = r.retryExpired(ctx)
	if r.granter != nil && r.ruleLister != nil {
		result.Granted = r.grantNew(ctx, stillValid)
	}

	r.metrics.ObserveSweepDuration(r.now().Sub(start))
	span.SetAttributes(
		attribute.Int("sweep.checked", result.Checked),
		attribute.Int("sweep.revoked", result.Revoked),
		attribute.Int("sweep.deferred", result.Deferred),
	)
	audit.Log(ctx, r.logger, r.auditPublisher, audit.Event{
		Action:  string(audit.EventSweepCompleted),
		ActorID: actorReconciler,
		Decision: fmt.Sprintf("checked=%d revoked=%d expired=%d deferred=%d failed=%d granted=%d",
			result.Checked, result.Revoked, result.Expired, result.Deferred, result.Failed, result.Granted),
	},
		"checked", result.Checked,
		"still_valid", result.StillValid,
		"revoked", result.Revoked,
		"expired", result.Expired,
		"deferred", result.Deferred,
		"failed", result.Failed,
		"granted", result.Granted,
		"retried_removals", result.RetriedRemovals,
	)
	return result, nil
}

// ReverifyUser re-checks every active assignment of userID now, regardless
// of staleness.
func (r *Reconciler) ReverifyUser(ctx context.Context, userID string) (SweepResult, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.ReverifyUser", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	active, err := r.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list user assignments: %w", err)
	}
	result, _ := r.process(ctx, active)
	return result, nil
}

// ReverifyRule re-checks every active assignment granted by ruleID now.
func (r *Reconciler) ReverifyRule(ctx context.Context, ruleID string) (SweepResult, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.ReverifyRule", trace.WithAttributes(
		attribute.String("rule.id", ruleID),
	))
	defer span.End()

	active, err := r.store.ListActiveByRule(ctx, ruleID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list rule assignments: %w", err)
	}
	result, _ := r.process(ctx, active)
	return result, nil
}

// process checks assignments in sequential batches, concurrently within a
// batch. It returns the assignments that stayed valid.
func (r *Reconciler) process(ctx context.Context, items []assignment.Assignment) (SweepResult, []assignment.Assignment) {
	var (
		mu         sync.Mutex
		result     SweepResult
		stillValid []assignment.Assignment
	)
	for start := 0; start < len(items); start += r.batchSize {
		if start > 0 && r.batchDelay > 0 {
			if err := r.sleep(ctx, r.batchDelay); err != nil {
				r.logger.WarnContext(ctx, "reverification interrupted", "remaining", len(items)-start, "error", err)
				break
			}
		}
		end := min(start+r.batchSize, len(items))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.batchSize)
		for i := start; i < end; i++ {
			a := items[i]
			g.Go(func() error {
				outcome := r.checkSafely(gctx, &a)
				mu.Lock()
				defer mu.Unlock()
				result.add(outcome)
				if outcome == OutcomeStillValid {
					stillValid = append(stillValid, a)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	r.metrics.IncrementSweepOutcome(string(OutcomeStillValid), result.StillValid)
	r.metrics.IncrementSweepOutcome(string(OutcomeRevoked), result.Revoked)
	r.metrics.IncrementSweepOutcome(string(OutcomeExpired), result.Expired)
	r.metrics.IncrementSweepOutcome(string(OutcomeDeferred), result.Deferred)
	r.metrics.IncrementSweepOutcome(string(OutcomeFailed), result.Failed)
	return result, stillValid
}

func (r *Reconciler) checkSafely(ctx context.Context, a *assignment.Assignment) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "panic while checking assignment",
				"assignment_id", a.ID.String(), "panic", rec)
			outcome = OutcomeFailed
		}
	}()
	outcome, err := r.check(ctx, a)
	if err != nil {
		r.logger.ErrorContext(ctx, "assignment check failed",
			"assignment_id", a.ID.String(),
			"user_id", a.UserID,
			"rule_id", a.RuleID,
			"outcome", string(outcome),
			"error", err,
		)
	}
	return outcome
}

// check applies the per-assignment policy.
func (r *Reconciler) check(ctx context.Context, a *assignment.Assignment) (Outcome, error) {
	var verdict verification.Verdict
	if a.IsLegacy() {
		verdict = r.verifier.VerifyLegacyHolder(ctx, a.UserID, a.Address)
	} else {
		verdict = r.verifier.VerifyUser(ctx, a.UserID, a.RuleID, a.Address)
	}
	now := r.now()

	switch {
	case verdict.IsValid:
		if err := a.MarkChecked(now); err != nil {
			return OutcomeFailed, err
		}
		if err := r.store.Update(ctx, a); err != nil {
			return OutcomeFailed, fmt.Errorf("record check: %w", err)
		}
		return OutcomeStillValid, nil
	case verdict.Deferred():
		r.logger.WarnContext(ctx, "ownership unavailable, deferring check",
			"assignment_id", a.ID.String(), "error", verdict.Error)
		return OutcomeDeferred, nil
	case verdict.Reason == verification.ReasonRuleStore, verdict.Reason == verification.ReasonUnknownRuleType:
		return OutcomeFailed, errors.New(verdict.Error)
	}

	reason := "below minimum"
	if verdict.Reason == verification.ReasonRuleNotFound {
		reason = "rule deleted"
	}
	return r.disqualify(ctx, a, now, reason)
}

// disqualify removes the role. A platform failure leaves the assignment
// expired so the retry pass picks it up.
func (r *Reconciler) disqualify(ctx context.Context, a *assignment.Assignment, now time.Time, reason string) (Outcome, error) {
	removeErr := r.platform.RemoveRole(ctx, a.GuildID, a.UserID, a.RoleID)

	outcome, event := OutcomeRevoked, audit.EventRoleRevoked
	var transition error
	if removeErr != nil {
		outcome, event = OutcomeExpired, audit.EventRoleExpired
		r.logger.WarnContext(ctx, "role removal failed, marking assignment expired",
			"assignment_id", a.ID.String(),
			"guild_id", a.GuildID,
			"user_id", a.UserID,
			"role_id", a.RoleID,
			"error", removeErr,
		)
		transition = a.Expire(now)
	} else {
		transition = a.Revoke(now)
	}
	if transition != nil {
		return OutcomeFailed, transition
	}
	if err := r.store.Update(ctx, a); err != nil {
		return OutcomeFailed, fmt.Errorf("record %s: %w", outcome, err)
	}

	audit.Log(ctx, r.logger, r.auditPublisher, audit.Event{
		UserID:  a.UserID,
		GuildID: a.GuildID,
		RoleID:  a.RoleID,
		RuleID:  a.RuleID,
		Address: a.Address,
		Action:  string(event),
		Reason:  reason,
		ActorID: actorReconciler,
	}, "user_id", a.UserID, "assignment_id", a.ID.String(), "reason", reason)
	return outcome, nil
}

// retryExpired retries role removal for recently expired assignments whose
// member still holds the role. Status stays expired.
func (r *Reconciler) retryExpired(ctx context.Context) int {
	if r.retryWindow <= 0 {
		return 0
	}
	expired, err := r.store.ListExpiredSince(ctx, r.now().Add(-r.retryWindow))
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list expired assignments", "error", err)
		return 0
	}
	removed := 0
	for _, a := range expired {
		held, err := r.platform.HasRole(ctx, a.GuildID, a.UserID, a.RoleID)
		if err != nil {
			r.logger.WarnContext(ctx, "role lookup failed during retry",
				"assignment_id", a.ID.String(), "error", err)
			continue
		}
		if !held {
			continue
		}
		if err := r.platform.RemoveRole(ctx, a.GuildID, a.UserID, a.RoleID); err != nil {
			r.logger.WarnContext(ctx, "role removal retry failed",
				"assignment_id", a.ID.String(), "error", err)
			continue
		}
		removed++
	}
	return removed
}

type holder struct {
	userID  string
	guildID string
	address string
}

// grantNew evaluates guild rules the holder does not hold yet and grants the
// ones now satisfied.
func (r *Reconciler) grantNew(ctx context.Context, stillValid []assignment.Assignment) int {
	seen := make(map[holder]struct{})
	granted := 0
	for _, a := range stillValid {
		h := holder{userID: a.UserID, guildID: a.GuildID, address: a.Address}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		granted += r.grantNewFor(ctx, h)
	}
	return granted
}

func (r *Reconciler) grantNewFor(ctx context.Context, h holder) int {
	guildRules, err := r.ruleLister.ListByGuild(ctx, h.guildID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to list guild rules", "guild_id", h.guildID, "error", err)
		return 0
	}
	active, err := r.store.ListActiveByUser(ctx, h.userID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to list user assignments", "user_id", h.userID, "error", err)
		return 0
	}
	held := make(map[string]struct{}, len(active))
	for _, a := range active {
		if a.GuildID == h.guildID {
			held[a.RuleID] = struct{}{}
		}
	}
	candidates := make([]rules.Rule, 0, len(guildRules))
	for _, rule := range guildRules {
		if _, ok := held[rule.ID]; !ok {
			candidates = append(candidates, rule)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	bulk := r.verifier.VerifyRules(ctx, h.userID, candidates, h.address)
	granted := 0
	for i, v := range bulk.Results {
		if !v.IsValid {
			continue
		}
		rule := candidates[i]
		_, err := r.granter.Grant(ctx, assignmentservice.GrantRequest{
			UserID:    h.userID,
			GuildID:   rule.GuildID,
			GuildName: rule.GuildName,
			RoleID:    rule.RoleID,
			RoleName:  rule.RoleName,
			RuleID:    rule.ID,
			Address:   h.address,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "failed to grant newly qualifying rule",
				"user_id", h.userID, "rule_id", rule.ID, "error", err)
			continue
		}
		granted++
	}
	return granted
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
