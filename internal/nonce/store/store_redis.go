package store

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"verethfier/internal/nonce"
	"verethfier/pkg/platform/sentinel"
)

const keyPrefix = "nonce:user:"

var errNoMatch = errors.New("no matching nonce")

// RedisNonceStore keeps one JSON nonce per owner under a TTL'd key, so
// restarts and multiple instances share the same view.
type RedisNonceStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func key(ownerUserID string) string {
	return keyPrefix + ownerUserID
}

func (s *RedisNonceStore) Save(ctx context.Context, n nonce.Nonce, ttl time.Duration) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal nonce: %w", err)
	}
	if err := s.client.Set(ctx, key(n.OwnerUserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Get(ctx context.Context, ownerUserID string, now time.Time) (*nonce.Nonce, error) {
	raw, err := s.client.Get(ctx, key(ownerUserID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	var n nonce.Nonce
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	// Redis expiry has second granularity; the payload is authoritative.
	if n.IsExpired(now) {
		return nil, fmt.Errorf("nonce expired: %w", sentinel.ErrNotFound)
	}
	return &n, nil
}

// Delete removes the owner's nonce if it still holds value. The read and
// delete run under WATCH, so a concurrent Save or Delete aborts this one.
func (s *RedisNonceStore) Delete(ctx context.Context, ownerUserID, value string) error {
	k := key(ownerUserID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return errNoMatch
		}
		if err != nil {
			return err
		}
		var n nonce.Nonce
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("decode nonce: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(n.Value), []byte(value)) != 1 {
			return errNoMatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNoMatch), errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	}
	return fmt.Errorf("delete nonce: %w", err)
}
