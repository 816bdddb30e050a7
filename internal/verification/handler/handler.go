package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verethfier/internal/verification/service"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/platform/httputil"
	"verethfier/pkg/requestcontext"
)

// Messages shown to end users. Detail stays in the logs.
const (
	msgVerificationFailed = "verification failed, please try again"
	msgUnavailable        = "asset lookup is temporarily unavailable, please try again later"
	msgRolePlatform       = "could not assign your roles, please try again later"
	msgInternal           = "something went wrong, please try again later"
)

// Service defines the verification operations exposed over HTTP.
type Service interface {
	Verify(ctx context.Context, req service.VerifyRequest) (*service.VerifyResult, error)
	StartVerification(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
}

// Handler serves the public verification endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, logger: logger}
}

// Register mounts the verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verify-signature", h.handleVerifySignature)
	r.Post("/verification/start", h.handleStart)
}

func (h *Handler) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.VerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid verify request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Verify(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err, "user_id", req.Data.UserID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.StartRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.StartVerification(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err, "user_id", req.UserID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// writeError translates a domain error into a user-safe message.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, attrs ...any) {
	code := dErrors.CodeOf(err)
	status := httputil.StatusFor(code)
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "code", string(code), "error", err)

	switch code {
	case dErrors.CodeInvalidNonce, dErrors.CodeInvalidSignature:
		h.logger.WarnContext(ctx, "verification rejected", attrs...)
		httputil.WriteMessage(w, status, msgVerificationFailed)
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeNoQualifyingAssets, dErrors.CodeNotFound:
		h.logger.InfoContext(ctx, "verification denied", attrs...)
		httputil.WriteMessage(w, status, dErrors.MessageOf(err))
	case dErrors.CodeUpstreamUnavailable:
		h.logger.WarnContext(ctx, "verification deferred", attrs...)
		httputil.WriteMessage(w, status, msgUnavailable)
	case dErrors.CodeRolePlatform:
		h.logger.ErrorContext(ctx, "role assignment failed", attrs...)
		httputil.WriteMessage(w, status, msgRolePlatform)
	default:
		h.logger.ErrorContext(ctx, "verification failed", attrs...)
		httputil.WriteMessage(w, http.StatusInternalServerError, msgInternal)
	}
}
