package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const pendingMarker = "__pending__"

// RedisIdempotencyStore records assistant responses keyed by owner and
// Idempotency-Key so every instance replays the same result.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

var _ ports.IdempotencyStore = (*RedisIdempotencyStore)(nil)

func (s *RedisIdempotencyStore) key(ownerID, key string) string {
	return fmt.Sprintf("idem:%s:%s", ownerID, key)
}

// Reserve claims the key. It returns false when the key is already pending
// or completed.
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, ownerID, key string) (bool, error) {
	return s.client.SetNX(ctx, s.key(ownerID, key), pendingMarker, s.ttl).Result()
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, ownerID, key string, response []byte) error {
	return s.client.Set(ctx, s.key(ownerID, key), response, s.ttl).Err()
}

// Lookup returns the stored response. ok is false while the request is
// still pending or when the key is unknown.
func (s *RedisIdempotencyStore) Lookup(ctx context.Context, ownerID, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(ownerID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(val) == pendingMarker {
		return nil, false, nil
	}
	return val, true, nil
}

// Release forgets the key so a failed request may be retried.
func (s *RedisIdempotencyStore) Release(ctx context.Context, ownerID, key string) error {
	return s.client.Del(ctx, s.key(ownerID, key)).Err()
}
