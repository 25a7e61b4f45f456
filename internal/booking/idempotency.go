package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which appointment a client-supplied request
// key produced, so retried book/reschedule calls return the original
// appointment instead of double-booking.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultIdempotencyTTL = 24 * time.Hour

// NewIdempotencyStore creates a redis-backed store. A zero ttl uses the
// 24h default.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyRedisKey(businessID uuid.UUID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", businessID, key)
}

// Claim reserves the key. The first caller gets ok=true and must later
// Resolve the key; replays get ok=false plus the appointment id once the
// original call resolved it (uuid.Nil while still in flight).
func (s *IdempotencyStore) Claim(ctx context.Context, businessID uuid.UUID, key string) (bool, uuid.UUID, error) {
	if s == nil || s.client == nil || key == "" {
		return true, uuid.Nil, nil
	}
	redisKey := idempotencyRedisKey(businessID, key)
	claimed, err := s.client.SetNX(ctx, redisKey, "", s.ttl).Result()
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("booking: claim idempotency key: %w", err)
	}
	if claimed {
		return true, uuid.Nil, nil
	}
	val, err := s.client.Get(ctx, redisKey).Result()
	if err != nil && err != redis.Nil {
		return false, uuid.Nil, fmt.Errorf("booking: read idempotency key: %w", err)
	}
	if val == "" {
		return false, uuid.Nil, nil
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return false, uuid.Nil, nil
	}
	return false, id, nil
}

// Resolve records the appointment the key produced.
func (s *IdempotencyStore) Resolve(ctx context.Context, businessID uuid.UUID, key string, appointmentID uuid.UUID) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	redisKey := idempotencyRedisKey(businessID, key)
	if err := s.client.Set(ctx, redisKey, appointmentID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("booking: resolve idempotency key: %w", err)
	}
	return nil
}

// Release frees the key after a failed call so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, businessID uuid.UUID, key string) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	if err := s.client.Del(ctx, idempotencyRedisKey(businessID, key)).Err(); err != nil {
		return fmt.Errorf("booking: release idempotency key: %w", err)
	}
	return nil
}
