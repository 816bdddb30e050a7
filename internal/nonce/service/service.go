package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"verethfier/internal/nonce"
	"verethfier/internal/platform/metrics"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/platform/audit"
	"verethfier/pkg/platform/sentinel"
	"verethfier/pkg/requestcontext"
)

const (
	DefaultTTL = 300 * time.Second
	valueBytes = 32
)

// ErrNoActiveNonce is the message carried by every nonce failure.
const ErrNoActiveNonce = "no active nonce"

// Service issues and validates single-use verification nonces.
type Service struct {
	store          nonce.Store
	ttl            time.Duration
	random         io.Reader
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Emitter
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithRandomSource replaces crypto/rand, for deterministic tests only.
func WithRandomSource(r io.Reader) Option {
	return func(s *Service) {
		s.random = r
	}
}

func New(store nonce.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("nonce store is required")
	}
	s := &Service{store: store, ttl: DefaultTTL, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// TTL is the configured nonce lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue creates a fresh nonce for the owner, replacing any previous one.
func (s *Service) Issue(ctx context.Context, ownerUserID, messageID, channelID string) (*nonce.Nonce, error) {
	if strings.TrimSpace(ownerUserID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	value, err := s.newValue()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce")
	}
	n := nonce.Nonce{
		Value:       value,
		OwnerUserID: ownerUserID,
		MessageID:   messageID,
		ChannelID:   channelID,
		ExpiresAt:   requestcontext.Now(ctx).Add(s.ttl),
	}
	if err := s.store.Save(ctx, n, s.ttl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store nonce")
	}
	s.metrics.IncrementNonceIssued()
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID: ownerUserID,
		Action: string(audit.EventNonceIssued),
	}, "user_id", ownerUserID, "message_id", messageID, "channel_id", channelID)
	return &n, nil
}

// Resolve returns the correlation data of the owner's live nonce without consuming it.
func (s *Service) Resolve(ctx context.Context, ownerUserID string) (nonce.Context, error) {
	n, err := s.load(ctx, ownerUserID)
	if err != nil {
		return nonce.Context{}, err
	}
	return nonce.Context{MessageID: n.MessageID, ChannelID: n.ChannelID}, nil
}

// Verify checks value against the owner's live nonce in constant time.
func (s *Service) Verify(ctx context.Context, ownerUserID, value string) (*nonce.Nonce, error) {
	n, err := s.load(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(n.Value), []byte(value)) != 1 {
		s.reject(ctx, ownerUserID, "mismatch")
		return nil, dErrors.New(dErrors.CodeInvalidNonce, "nonce mismatch")
	}
	return n, nil
}

// Consume deletes the owner's nonce if it is still value. It succeeds for
// exactly one caller per issued nonce, and a stale value never burns a newer one.
func (s *Service) Consume(ctx context.Context, ownerUserID, value string) error {
	if err := s.store.Delete(ctx, ownerUserID, value); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.reject(ctx, ownerUserID, "missing")
			return dErrors.New(dErrors.CodeInvalidNonce, ErrNoActiveNonce)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume nonce")
	}
	s.metrics.IncrementNonceConsumed()
	return nil
}

func (s *Service) load(ctx context.Context, ownerUserID string) (*nonce.Nonce, error) {
	n, err := s.store.Get(ctx, ownerUserID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.reject(ctx, ownerUserID, "missing")
			return nil, dErrors.New(dErrors.CodeInvalidNonce, ErrNoActiveNonce)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load nonce")
	}
	return n, nil
}

func (s *Service) reject(ctx context.Context, ownerUserID, reason string) {
	s.metrics.IncrementNonceRejected(reason)
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		UserID: ownerUserID,
		Action: string(audit.EventNonceRejected),
		Reason: reason,
	}, "user_id", ownerUserID, "reason", reason)
}

func (s *Service) newValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
