package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/database"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
)

const (
	selectSnapshotSQL = `
		SELECT payload
		FROM checkout_snapshots
		WHERE slot_id = $1 AND expires_at > $2`

	upsertSnapshotSQL = `
		INSERT INTO checkout_snapshots (slot_id, payload, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slot_id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at`

	deleteSnapshotSQL = `DELETE FROM checkout_snapshots WHERE slot_id = $1`

	deleteExpiredSQL = `DELETE FROM checkout_snapshots WHERE expires_at <= $1`
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SnapshotStore implements repository.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	db  database.DBTX
	now func() time.Time
}

// NewSnapshotStore creates a new PostgreSQL-backed snapshot store.
func NewSnapshotStore(db database.DBTX) *SnapshotStore {
	return &SnapshotStore{db: db, now: time.Now}
}

// Load reads an unexpired snapshot for slotID.
func (s *SnapshotStore) Load(ctx context.Context, slotID string) (_ *domain.Snapshot, err error) {
	ctx, end := database.TraceQuery(ctx, "LoadSnapshot", selectSnapshotSQL)
	defer func() { end(err) }()

	var payload []byte
	err = s.db.QueryRow(ctx, selectSnapshotSQL, slotID, s.now().UTC()).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("checkout_snapshot", slotID)
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err = json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot, expiring it after ttl.
func (s *SnapshotStore) Save(ctx context.Context, slotID string, snapshot *domain.Snapshot, ttl time.Duration) (err error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ctx, end := database.TraceQuery(ctx, "SaveSnapshot", upsertSnapshotSQL)
	defer func() { end(err) }()

	now := s.now().UTC()
	if _, err = s.db.Exec(ctx, upsertSnapshotSQL, slotID, payload, now.Add(ttl), now); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for slotID.
func (s *SnapshotStore) Delete(ctx context.Context, slotID string) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteSnapshot", deleteSnapshotSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteSnapshotSQL, slotID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Ping checks the database connection when the handle supports it.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// DeleteExpired removes every snapshot that expired at or before before and
// returns how many rows were deleted.
func (s *SnapshotStore) DeleteExpired(ctx context.Context, before time.Time) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteExpiredSnapshots", deleteExpiredSQL)
	defer func() { end(err) }()

	tag, err := s.db.Exec(ctx, deleteExpiredSQL, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunSweeper deletes expired snapshots every interval until ctx is done.
func (s *SnapshotStore) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpired(ctx, s.now())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("snapshot sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("expired checkout snapshots removed", slog.Int64("count", n))
			}
		}
	}
}
