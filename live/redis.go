package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore shares live snapshots across instances. Keys expire so a visit
// that stops reporting disappears from UIs on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		ttl: 10 * time.Minute,
	}
}

func liveKey(visitID uuid.UUID) string {
	return fmt.Sprintf("visit:live:%s", visitID)
}

func (s *RedisStore) SetSnapshot(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal live snapshot: %w", err)
	}
	if err := s.client.Set(ctx, liveKey(snap.VisitID), body, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store live snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) GetSnapshot(ctx context.Context, visitID uuid.UUID) (*Snapshot, error) {
	body, err := s.client.Get(ctx, liveKey(visitID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read live snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live snapshot: %w", err)
	}
	return &snap, nil
}

// Ping verifies the connection at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
