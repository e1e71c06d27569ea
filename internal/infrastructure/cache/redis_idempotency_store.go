package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/carelink/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "webhook:event:"

// RedisIdempotencyStore tracks processed event IDs in Redis so duplicate
// suppression survives restarts and is shared across instances.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// MarkProcessed records an event ID with SETNX semantics. It returns true
// when this call claimed the ID and false when another call already did.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+eventID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return ok, nil
}

// IsProcessed reports whether an event ID has already been claimed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the Redis client is owned by the caller
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
