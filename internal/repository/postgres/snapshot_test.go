package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*SnapshotStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewSnapshotStore(mock)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func sampleSnapshot() *domain.Snapshot {
	expires := fixedNow.Add(30 * time.Minute)
	return &domain.Snapshot{
		Version:     domain.SnapshotVersion,
		SessionID:   "sess-001",
		CurrentStep: domain.StepPayment,
		PaymentMethod: &domain.PaymentMethod{
			Type: domain.PaymentCash,
			Cash: &domain.CashDetails{Confirmed: true},
		},
		OrderData:        domain.NewOrderData([]domain.LineItem{{ProductID: "p1", Price: 100, Quantity: 1}}, "EUR", 0),
		SessionExpiresAt: &expires,
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestSnapshotStore_Load_Success(t *testing.T) {
	store, mock := newTestStore(t)

	payload, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload\s+FROM checkout_snapshots`).
		WithArgs("slot-1", fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	snap, err := store.Load(context.Background(), "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-001", snap.SessionID)
	assert.Equal(t, domain.StepPayment, snap.CurrentStep)
	assert.Equal(t, int64(100), snap.OrderData.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_Load_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT payload\s+FROM checkout_snapshots`).
		WithArgs("missing", fixedNow).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_Load_DBError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT payload\s+FROM checkout_snapshots`).
		WithArgs("slot-1", fixedNow).
		WillReturnError(errors.New("connection reset"))

	_, err := store.Load(context.Background(), "slot-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select snapshot")
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSnapshotStore_Load_CorruptPayload(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT payload\s+FROM checkout_snapshots`).
		WithArgs("slot-1", fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow([]byte("{not json")))

	_, err := store.Load(context.Background(), "slot-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal snapshot")
}

// ---------------------------------------------------------------------------
// Save / Delete
// ---------------------------------------------------------------------------

func TestSnapshotStore_Save(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO checkout_snapshots").
		WithArgs("slot-1", pgxmock.AnyArg(), fixedNow.Add(30*time.Minute), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Save(context.Background(), "slot-1", sampleSnapshot(), 30*time.Minute)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_Save_DBError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO checkout_snapshots").
		WithArgs("slot-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err := store.Save(context.Background(), "slot-1", sampleSnapshot(), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert snapshot")
}

func TestSnapshotStore_Delete(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM checkout_snapshots WHERE slot_id").
		WithArgs("slot-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), "slot-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_DeleteExpired(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM checkout_snapshots WHERE expires_at").
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := store.DeleteExpired(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_Ping(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
