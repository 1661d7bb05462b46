package oauth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

var (
	now      = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	takeCols = []string{"code_verifier", "discord_user_id", "expires_at", "created_at"}
)

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	exec := postgres.NewExecutor(mock, postgres.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond})
	store := NewStore(exec, NewRepository(), 10*time.Minute)
	store.now = func() time.Time { return now }
	return store, mock
}

func TestCreate(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO oauth_temp_storage").
		WithArgs("st1", verifier, "u1", now.Add(10*time.Minute), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	h, err := store.Create(context.Background(), "st1", verifier, "u1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), h.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateState(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO oauth_temp_storage").
		WithArgs("st1", verifier, "u1", now.Add(10*time.Minute), now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: ConstraintState})
	mock.ExpectRollback()

	_, err := store.Create(context.Background(), "st1", verifier, "u1")
	assert.ErrorIs(t, err, common.ErrDuplicateState)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Validation(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Create(context.Background(), "", verifier, "u1")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = store.Create(context.Background(), "st1", "short", "u1")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestConsume(t *testing.T) {
	tests := []struct {
		name     string
		rows     *pgxmock.Rows
		status   Status
		verifier string
	}{
		{
			name:     "действующее",
			rows:     pgxmock.NewRows(takeCols).AddRow(verifier, "u1", now.Add(time.Minute), now.Add(-9*time.Minute)),
			status:   Consumed,
			verifier: verifier,
		},
		{
			name:   "просроченное, но не удалённое",
			rows:   pgxmock.NewRows(takeCols).AddRow(verifier, "u1", now.Add(-time.Second), now.Add(-10*time.Minute)),
			status: Expired,
		},
		{
			name:   "ровно в момент истечения",
			rows:   pgxmock.NewRows(takeCols).AddRow(verifier, "u1", now, now.Add(-10*time.Minute)),
			status: Expired,
		},
		{
			name:   "уже использовано",
			rows:   pgxmock.NewRows(takeCols),
			status: NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTestStore(t)
			mock.ExpectBegin()
			mock.ExpectQuery("DELETE FROM oauth_temp_storage").WithArgs("st1").WillReturnRows(tt.rows)
			mock.ExpectCommit()

			res, err := store.Consume(context.Background(), "st1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.verifier, res.CodeVerifier)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConsume_EmptyState(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.Consume(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)
}

func TestSweep(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM oauth_temp_storage WHERE expires_at <= \\$1").WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	n, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStatus_EncodesAsName(t *testing.T) {
	raw, err := json.Marshal(map[string]Status{"status": Expired})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"expired"}`, string(raw))
}
