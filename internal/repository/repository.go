package repository

import (
	"context"
	"time"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
)

// SnapshotStore is the durable per-browser slot holding a sanitized
// checkout snapshot.
type SnapshotStore interface {
	// Load returns the snapshot stored in slotID, or an error wrapping
	// apperrors.ErrNotFound when the slot is empty.
	Load(ctx context.Context, slotID string) (*domain.Snapshot, error)

	// Save overwrites the slot. The store may drop it after ttl.
	Save(ctx context.Context, slotID string, snapshot *domain.Snapshot, ttl time.Duration) error

	// Delete clears the slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context, slotID string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
