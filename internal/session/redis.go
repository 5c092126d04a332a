package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces session hashes in a shared Redis.
const redisKeyPrefix = "seif:session:"

// RedisStore keeps each session as a Redis hash with a TTL, so sessions
// survive restarts and are shared between app instances.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a session store backed by the given client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Load reads every field of the session hash. Redis drops expired keys on
// its own, so an empty hash means the session is gone.
func (s *RedisStore) Load(ctx context.Context, id string) (map[string]string, error) {
	values, err := s.rdb.HGetAll(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return values, nil
}

// Save atomically replaces the hash and sets its TTL.
func (s *RedisStore) Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error {
	key := redisKeyPrefix + id

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session to redis: %w", err)
	}
	return nil
}

// Touch slides the session's expiry forward.
func (s *RedisStore) Touch(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, redisKeyPrefix+id, ttl).Err(); err != nil {
		return fmt.Errorf("refreshing session ttl: %w", err)
	}
	return nil
}

// Destroy deletes the session hash.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}
