package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"verethfier/internal/ratelimit"
)

const keyPrefix = "ratelimit:"

// RedisStore is a fixed window counter shared by every instance. Each window
// gets its own key that expires with the window.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

type RedisOption func(*RedisStore)

// WithRedisClock injects the time source used to pick the window.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func windowKey(key string, start time.Time) string {
	return keyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10)
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := s.now()
	start := now.Truncate(window)
	resetAt := start.Add(window)
	k := windowKey(key, start)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("increment rate limit counter: %w", err)
	}

	count := int(incr.Val())
	if count > limit {
		return ratelimit.Denied(limit, resetAt, now), nil
	}
	return &ratelimit.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   resetAt,
	}, nil
}
