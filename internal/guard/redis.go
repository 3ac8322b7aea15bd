package guard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the guard with a shared Redis instance, giving the
// at-most-once contract across processes. SET NX provides the atomic
// first-write; KEEPTTL preserves the window when the outcome replaces the
// pending marker.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Acquire implements Store using SET NX PX followed by a GET on loss.
func (s *RedisStore) Acquire(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, true, nil
	}
	current, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// The holder expired or released between SETNX and GET; treat the
		// entry as still held this round, the caller's next attempt wins.
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return current, false, nil
}

// Put implements Store, keeping the key's remaining TTL.
func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, redis.KeepTTL).Err()
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
