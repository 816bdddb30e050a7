package store

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"verethfier/internal/nonce"
	"verethfier/pkg/platform/sentinel"
)

// InMemoryNonceStore keeps nonces in a mutex-guarded map. Expiry is enforced
// on read; RunJanitor reclaims memory from abandoned attempts.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]nonce.Nonce
}

func NewInMemory() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]nonce.Nonce)}
}

// Save replaces any previous nonce for the owner. Expiry comes from n.ExpiresAt.
func (s *InMemoryNonceStore) Save(_ context.Context, n nonce.Nonce, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[n.OwnerUserID] = n
	return nil
}

func (s *InMemoryNonceStore) Get(_ context.Context, ownerUserID string, now time.Time) (*nonce.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[ownerUserID]
	if !ok {
		return nil, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	}
	if n.IsExpired(now) {
		delete(s.nonces, ownerUserID)
		return nil, fmt.Errorf("nonce expired: %w", sentinel.ErrNotFound)
	}
	return &n, nil
}

func (s *InMemoryNonceStore) Delete(_ context.Context, ownerUserID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[ownerUserID]
	if !ok || subtle.ConstantTimeCompare([]byte(n.Value), []byte(value)) != 1 {
		return fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	}
	delete(s.nonces, ownerUserID)
	return nil
}

// DeleteExpired removes every nonce expired as of now.
func (s *InMemoryNonceStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for owner, n := range s.nonces {
		if n.IsExpired(now) {
			delete(s.nonces, owner)
			deleted++
		}
	}
	return deleted, nil
}

// RunJanitor sweeps expired nonces every interval until ctx is cancelled.
func (s *InMemoryNonceStore) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, _ := s.DeleteExpired(ctx, now)
			if n > 0 && logger != nil {
				logger.DebugContext(ctx, "expired nonces removed", "count", n)
			}
		}
	}
}
