package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore implements Store over a Redis backend. Markers map to string
// keys with SETEX, history maps to lists with RPUSH + EXPIRE, matching the
// whole-key expiry contract directly.
type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("session: redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *redisStore) PutEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis setex %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) Append(ctx context.Context, key, value string) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("session: redis rpush %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis expire %q: %w", key, err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis lrange %q: %w", key, err)
	}
	return vals, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
