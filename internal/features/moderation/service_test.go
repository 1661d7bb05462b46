package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	exec := postgres.NewExecutor(mock, postgres.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond})
	return NewService(exec, NewRepository()), mock
}

func TestAddWarning(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO warns").WithArgs("u1", "s1", "m1", "флуд").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectCommit()

	w, err := svc.AddWarning(context.Background(), "u1", "s1", "m1", "флуд")
	require.NoError(t, err)
	assert.Equal(t, int64(4), w.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddWarning_EmptyReason(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddWarning(context.Background(), "u1", "s1", "m1", "  ")
	assert.ErrorIs(t, err, common.ErrEmptyReason)
}

func TestRemoveWarning(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM warns").WithArgs(int64(4), "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	require.NoError(t, svc.RemoveWarning(context.Background(), "s1", 4))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM warns").WithArgs(int64(5), "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()
	err := svc.RemoveWarning(context.Background(), "s1", 5)
	assert.ErrorIs(t, err, common.ErrWarningNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarningsAndCount(t *testing.T) {
	svc, mock := newTestService(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM warns").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "server_id", "moderator_id", "reason", "created_at"}).
			AddRow(int64(2), "u1", "s1", "m1", "спам", at).
			AddRow(int64(1), "u1", "s1", "m1", "флуд", at))
	mock.ExpectQuery("SELECT COUNT").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	list, err := svc.Warnings(context.Background(), "u1", "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "спам", list[0].Reason)

	n, err := svc.WarningCount(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
