package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verethfier/internal/admin"
	"verethfier/internal/assignment"
	"verethfier/internal/reconcile"
	"verethfier/internal/rules"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/platform/httputil"
	adminmw "verethfier/pkg/platform/middleware/admin"
	"verethfier/pkg/requestcontext"
)

// RuleService is the rule administration port.
type RuleService interface {
	Create(ctx context.Context, rule rules.Rule) (*rules.Rule, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, guildID string) ([]rules.Rule, error)
	BackfillMessageID(ctx context.Context, guildID, channelID, messageID string) (int, error)
}

// Reconciler is the on-demand reverification port.
type Reconciler interface {
	RunScheduledReverification(ctx context.Context) (reconcile.SweepResult, error)
	ReverifyUser(ctx context.Context, userID string) (reconcile.SweepResult, error)
	ReverifyRule(ctx context.Context, ruleID string) (reconcile.SweepResult, error)
}

type AssignmentHistory interface {
	History(ctx context.Context, userID string) ([]assignment.Assignment, error)
}

// Handler serves the JWT-protected admin API.
type Handler struct {
	rules       RuleService
	reconciler  Reconciler
	assignments AssignmentHistory
	validator   adminmw.TokenValidator
	logger      *slog.Logger
}

func New(ruleService RuleService, reconciler Reconciler, assignments AssignmentHistory, validator adminmw.TokenValidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rules:       ruleService,
		reconciler:  reconciler,
		assignments: assignments,
		validator:   validator,
		logger:      logger,
	}
}

// Register mounts the admin routes under /admin.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminmw.RequireAdmin(h.validator, h.logger))

		r.Post("/rules", h.handleCreateRule)
		r.Delete("/rules/{ruleID}", h.handleDeleteRule)
		r.Get("/guilds/{guildID}/rules", h.handleListRules)
		r.Post("/guilds/{guildID}/channels/{channelID}/message", h.handleBackfillMessage)
		r.Get("/users/{userID}/assignments", h.handleListAssignments)

		r.Post("/reverify/users/{userID}", h.handleReverifyUser)
		r.Post("/reverify/rules/{ruleID}", h.handleReverifyRule)
		r.Post("/reverify/sweep", h.handleSweep)
	})
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req admin.CreateRuleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "create rule")
		return
	}
	created, err := h.rules.Create(ctx, req.ToRule())
	if err != nil {
		h.writeError(ctx, w, err, "create rule")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, admin.NewRuleResponse(*created))
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.rules.Delete(ctx, chi.URLParam(r, "ruleID")); err != nil {
		h.writeError(ctx, w, err, "delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.rules.List(ctx, chi.URLParam(r, "guildID"))
	if err != nil {
		h.writeError(ctx, w, err, "list rules")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admin.NewRulesListResponse(list))
}

func (h *Handler) handleBackfillMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req admin.BackfillRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "backfill message id")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(ctx, w, err, "backfill message id")
		return
	}
	updated, err := h.rules.BackfillMessageID(ctx, chi.URLParam(r, "guildID"), chi.URLParam(r, "channelID"), req.MessageID)
	if err != nil {
		h.writeError(ctx, w, err, "backfill message id")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admin.BackfillResponse{Updated: updated})
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.assignments.History(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(ctx, w, err, "list assignments")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admin.NewAssignmentsListResponse(list))
}

func (h *Handler) handleReverifyUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	h.runReverification(w, r, "reverify user", func(ctx context.Context) (reconcile.SweepResult, error) {
		return h.reconciler.ReverifyUser(ctx, userID)
	}, "user_id", userID)
}

func (h *Handler) handleReverifyRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")
	h.runReverification(w, r, "reverify rule", func(ctx context.Context) (reconcile.SweepResult, error) {
		return h.reconciler.ReverifyRule(ctx, ruleID)
	}, "rule_id", ruleID)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	h.runReverification(w, r, "reverification sweep", h.reconciler.RunScheduledReverification)
}

func (h *Handler) runReverification(w http.ResponseWriter, r *http.Request, op string, run func(context.Context) (reconcile.SweepResult, error), attrs ...any) {
	ctx := r.Context()
	result, err := run(ctx)
	if err != nil {
		h.writeError(ctx, w, dErrors.Wrap(err, dErrors.CodeInternal, op+" failed"), op)
		return
	}
	attrs = append(attrs,
		"request_id", requestcontext.RequestID(ctx),
		"admin", requestcontext.AdminSubject(ctx),
		"checked", result.Checked,
		"revoked", result.Revoked,
	)
	h.logger.InfoContext(ctx, op+" triggered", attrs...)
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
