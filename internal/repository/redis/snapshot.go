package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
)

const keyPrefix = "checkout:session:"

// SnapshotStore implements repository.SnapshotStore using Redis. Expiry is
// left to the key TTL.
type SnapshotStore struct {
	client redis.UniversalClient
}

// NewSnapshotStore creates a new Redis-backed snapshot store.
func NewSnapshotStore(client redis.UniversalClient) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// Load reads the snapshot for slotID.
func (s *SnapshotStore) Load(ctx context.Context, slotID string) (*domain.Snapshot, error) {
	data, err := s.client.Get(ctx, keyPrefix+slotID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("checkout_snapshot", slotID)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot with the given TTL.
func (s *SnapshotStore) Save(ctx context.Context, slotID string, snapshot *domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+slotID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for slotID.
func (s *SnapshotStore) Delete(ctx context.Context, slotID string) error {
	if err := s.client.Del(ctx, keyPrefix+slotID).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
