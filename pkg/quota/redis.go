package quota

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisKeyUsedBytes stores the shared cumulative usage.
const redisKeyUsedBytes = "gdelt:quota:used_bytes"

// RedisStore shares cumulative usage across processes through Redis.
// The Tracker's mutex only excludes callers within one process; separate
// processes sharing a budget should accept small races on simultaneous
// commits, the same way they already do for cache writes.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed usage store.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{redis: client}, nil
}

// Load returns the shared usage, or zero when no state exists yet.
func (s *RedisStore) Load(ctx context.Context) (int64, error) {
	used, err := s.redis.Get(ctx, redisKeyUsedBytes).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return used, nil
}

// Save records the shared usage with no expiry.
func (s *RedisStore) Save(ctx context.Context, used int64) error {
	if err := s.redis.Set(ctx, redisKeyUsedBytes, used, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
