package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"verethfier/internal/verification/handler/mocks"
	"verethfier/internal/verification/service"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/testutil"
)

// =============================================================================
// Verification Handler Test Suite
// =============================================================================
// The handler owns request decoding and the user-facing error wording. Tests
// check that nonce and signature failures stay generic while missing-asset
// failures carry their detail.

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func verifyBody() map[string]any {
	return map[string]any{
		"data": map[string]any{
			"address":   "0xabc",
			"userId":    "user-1",
			"discordId": "guild-1",
			"nonce":     "n1",
			"expiry":    1900000000,
		},
		"signature": "0xsig",
	}
}

func (s *HandlerSuite) TestVerifySignatureSuccess() {
	s.service.EXPECT().
		Verify(gomock.Any(), gomock.AssignableToTypeOf(service.VerifyRequest{})).
		DoAndReturn(func(_ any, req service.VerifyRequest) (*service.VerifyResult, error) {
			s.Equal("user-1", req.Data.UserID)
			s.Equal(int64(1900000000), req.Data.Expiry)
			return &service.VerifyResult{
				Message:       "Verification successful",
				Address:       "0xabc",
				AssignedRoles: []string{"role-1"},
				Grants:        []service.AssignedRole{{RoleID: "role-1", RuleID: "rule-1"}},
			}, nil
		})

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verify-signature", verifyBody()))

	s.Equal(http.StatusOK, rr.Code)
	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("0xabc", (*body)["address"])
	s.Equal("Verification successful", (*body)["message"])
	s.Equal([]any{"role-1"}, (*body)["assignedRoles"], "assignedRoles is a list of role ids")
}

func (s *HandlerSuite) TestVerifySignatureErrors() {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"nonce failure is generic", dErrors.New(dErrors.CodeInvalidNonce, "no active nonce"),
			http.StatusUnauthorized, msgVerificationFailed},
		{"signature failure is generic", dErrors.New(dErrors.CodeInvalidSignature, "signer does not match address"),
			http.StatusUnauthorized, msgVerificationFailed},
		{"missing assets are specific", dErrors.New(dErrors.CodeNoQualifyingAssets, "address holds 0 of the 1 required asset(s) from punks"),
			http.StatusForbidden, "address holds 0 of the 1 required asset(s) from punks"},
		{"validation is specific", dErrors.New(dErrors.CodeValidation, "nonce is required"),
			http.StatusBadRequest, "nonce is required"},
		{"index outage", dErrors.New(dErrors.CodeUpstreamUnavailable, "ownership lookup is unavailable"),
			http.StatusServiceUnavailable, msgUnavailable},
		{"platform outage", dErrors.New(dErrors.CodeRolePlatform, "failed to add role"),
			http.StatusServiceUnavailable, msgRolePlatform},
		{"internal detail is hidden", errors.New("pq: connection refused"),
			http.StatusInternalServerError, msgInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verify-signature", verifyBody()))

			testutil.AssertStatusAndError(s.T(), rr, tc.status, tc.message)
		})
	}
}

func (s *HandlerSuite) TestMalformedBody() {
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/verify-signature", "{not json"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid request body")
}

func (s *HandlerSuite) TestStartVerification() {
	expires := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	s.service.EXPECT().
		StartVerification(gomock.Any(), service.StartRequest{UserID: "user-1", MessageID: "msg-1"}).
		Return(&service.StartResult{Nonce: "abc", ExpiresAt: expires}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verification/start",
		map[string]string{"userId": "user-1", "messageId": "msg-1"}))

	s.Equal(http.StatusCreated, rr.Code)
	got := testutil.UnmarshalResponse[service.StartResult](s.T(), rr)
	s.Equal("abc", got.Nonce)
	s.True(expires.Equal(got.ExpiresAt))
}

func (s *HandlerSuite) TestStartVerificationValidation() {
	s.service.EXPECT().
		StartVerification(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "user id is required"))

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verification/start", map[string]string{}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "user id is required")
}
