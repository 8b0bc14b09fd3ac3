// Package memory is an in-process snapshot store for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// SnapshotStore keeps snapshots in a map. Values are stored as JSON so
// callers never share memory with the store.
type SnapshotStore struct {
	mu    sync.Mutex
	slots map[string]entry
	now   func() time.Time
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		slots: make(map[string]entry),
		now:   time.Now,
	}
}

// Load returns the snapshot in slotID if it has not outlived its TTL.
func (s *SnapshotStore) Load(_ context.Context, slotID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	e, ok := s.slots[slotID]
	if ok && !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.slots, slotID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, apperrors.NotFound("checkout_snapshot", slotID)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(e.data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save stores the snapshot. A non-positive ttl keeps it until deleted.
func (s *SnapshotStore) Save(_ context.Context, slotID string, snapshot *domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.slots[slotID] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the slot.
func (s *SnapshotStore) Delete(_ context.Context, slotID string) error {
	s.mu.Lock()
	delete(s.slots, slotID)
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *SnapshotStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored slots, expired or not.
func (s *SnapshotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
