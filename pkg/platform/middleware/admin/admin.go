// Package admin guards the administrative API with an HS256 bearer token
// carrying role=admin.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "verethfier/pkg/domain-errors"
	request "verethfier/pkg/platform/middleware/request"
	"verethfier/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the admin subject.
type TokenValidator interface {
	ValidateAdminToken(tokenString string) (string, error)
}

func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeDenied(w, http.StatusUnauthorized, `{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`)
				return
			}

			subject, err := validator.ValidateAdminToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				if dErrors.HasCode(err, dErrors.CodeForbidden) {
					writeDenied(w, http.StatusForbidden, `{"error":"forbidden","error_description":"admin role required"}`)
					return
				}
				writeDenied(w, http.StatusUnauthorized, `{"error":"unauthorized","error_description":"Invalid or expired token"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminSubject(ctx, subject)))
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
