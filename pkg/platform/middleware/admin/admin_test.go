package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/requestcontext"
)

type stubValidator struct {
	subject string
	err     error
}

func (s stubValidator) ValidateAdminToken(string) (string, error) {
	return s.subject, s.err
}

func TestRequireAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var subject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = requestcontext.AdminSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"not bearer", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", stubValidator{err: dErrors.New(dErrors.CodeUnauthorized, "invalid token")}, http.StatusUnauthorized},
		{"wrong role", "Bearer tok", stubValidator{err: dErrors.New(dErrors.CodeForbidden, "admin role required")}, http.StatusForbidden},
		{"admin", "Bearer tok", stubValidator{subject: "ops"}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			req := httptest.NewRequest(http.MethodGet, "/admin/rules", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			RequireAdmin(tt.validator, logger)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "ops", subject)
			}
		})
	}
}
