package points

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/config"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

func newTestService(t *testing.T, floor string) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	exec := postgres.NewExecutor(mock, postgres.RetryPolicy{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
	})
	return NewService(exec, NewRepository(), floor, 10000), mock
}

func expectLock(mock pgxmock.PgxPoolIface, user, tenant string, points int) {
	mock.ExpectExec("INSERT INTO user_points").WithArgs(user, tenant).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT points FROM user_points").WithArgs(user, tenant).
		WillReturnRows(pgxmock.NewRows([]string{"points"}).AddRow(points))
}

func TestApplyDelta_ClampsAtZero(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)

	mock.ExpectBegin()
	expectLock(mock, "u1", "s1", 0)
	mock.ExpectExec("UPDATE user_points").WithArgs("u1", "s1", 0, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO points_audit_log").
		WithArgs(OpAdminAdjust, "mod1", "u1", "s1", -50, 0, 0, true, "спам").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	res, err := svc.ApplyDelta(context.Background(), Change{
		UserID: "u1", TenantID: "s1", Delta: -50,
		ActorID: "mod1", Reason: "спам", Operation: OpAdminAdjust,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.PointsBefore)
	assert.Equal(t, 0, res.PointsAfter)
	assert.Equal(t, -50, res.PointsChange)
	assert.True(t, res.Clamped)
	assert.Equal(t, int64(7), res.AuditID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_Credit(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)

	mock.ExpectBegin()
	expectLock(mock, "u1", "s1", 40)
	mock.ExpectExec("UPDATE user_points").WithArgs("u1", "s1", 65, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO points_audit_log").
		WithArgs(OpAdminAdjust, "mod1", "u1", "s1", 25, 40, 65, false, "конкурс").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectCommit()

	res, err := svc.ApplyDelta(context.Background(), Change{
		UserID: "u1", TenantID: "s1", Delta: 25,
		ActorID: "mod1", Reason: "конкурс", Operation: OpAdminAdjust,
	})
	require.NoError(t, err)
	assert.Equal(t, 65, res.PointsAfter)
	assert.False(t, res.Clamped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_RejectPolicy(t *testing.T) {
	svc, mock := newTestService(t, config.FloorReject)

	mock.ExpectBegin()
	expectLock(mock, "u1", "s1", 30)
	mock.ExpectRollback()

	_, err := svc.ApplyDelta(context.Background(), Change{
		UserID: "u1", TenantID: "s1", Delta: -50,
		ActorID: "mod1", Reason: "штраф", Operation: OpAdminAdjust,
	})
	assert.ErrorIs(t, err, common.ErrInsufficientPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_ValidationBeforeAnyWrite(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)

	valid := Change{UserID: "u1", TenantID: "s1", Delta: 5, ActorID: "mod1", Reason: "ok", Operation: OpAdminAdjust}
	cases := []struct {
		name   string
		mutate func(c *Change)
		want   error
	}{
		{"empty reason", func(c *Change) { c.Reason = "  " }, common.ErrEmptyReason},
		{"zero delta", func(c *Change) { c.Delta = 0 }, common.ErrInvalidAmount},
		{"delta too large", func(c *Change) { c.Delta = 10001 }, common.ErrInvalidAmount},
		{"debit too large", func(c *Change) { c.Delta = -10001 }, common.ErrInvalidAmount},
		{"bad user id", func(c *Change) { c.UserID = "user id with spaces" }, common.ErrInvalidID},
		{"empty tenant", func(c *Change) { c.TenantID = "" }, common.ErrInvalidID},
		{"unknown operation", func(c *Change) { c.Operation = "casino" }, common.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			_, err := svc.ApplyDelta(context.Background(), c)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyInTx_CountsCheckins(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)

	expectLock(mock, "u1", "s1", 10)
	mock.ExpectExec("UPDATE user_points").WithArgs("u1", "s1", 20, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO points_audit_log").
		WithArgs(OpCheckin, SystemActor, "u1", "s1", 10, 10, 20, false, "daily checkin").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))

	res, err := svc.ApplyInTx(context.Background(), mock, Change{
		UserID: "u1", TenantID: "s1", Delta: 10,
		ActorID: SystemActor, Reason: "daily checkin", Operation: OpCheckin,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, res.PointsBefore)
	assert.Equal(t, 20, res.PointsAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyInTx_MissingRowIsInvariantViolation(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)

	expectLock(mock, "u1", "s1", 10)
	mock.ExpectExec("UPDATE user_points").WithArgs("u1", "s1", 15, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := svc.ApplyInTx(context.Background(), mock, Change{
		UserID: "u1", TenantID: "s1", Delta: 5,
		ActorID: SystemActor, Reason: "activity", Operation: OpActivity,
	}, 0)
	assert.ErrorIs(t, err, common.ErrInvariantViolation)
}

func TestGetBalance_AbsentIsZero(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)

	mock.ExpectQuery("SELECT points, total_checkins, updated_at").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"points", "total_checkins", "updated_at"}))

	b, err := svc.GetBalance(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Points)
	assert.Equal(t, "u1", b.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboard_RanksWithinTenant(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM user_points").WithArgs("s1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "points", "total_checkins", "updated_at"}).
			AddRow("u2", 90, 5, now).
			AddRow("u1", 20, 2, now))

	top, err := svc.Leaderboard(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u2", top[0].UserID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 2, top[1].Rank)
	assert.Equal(t, "s1", top[1].TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLog_Filters(t *testing.T) {
	svc, mock := newTestService(t, config.FloorClamp)
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("actor_id = \\$2 AND target_user_id = \\$3").WithArgs("s1", "mod1", "u1", 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "operation_type", "actor_id", "target_user_id", "server_id",
			"points_change", "points_before", "points_after", "clamped", "reason", "created_at",
		}).AddRow(int64(3), OpAdminAdjust, "mod1", "u1", "s1", -5, 10, 5, false, "штраф", now))

	entries, err := svc.AuditLog(context.Background(), AuditFilter{
		TenantID: "s1", ActorID: "mod1", TargetID: "u1", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].PointsAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFloor(t *testing.T) {
	cases := []struct {
		policy      string
		before      int
		delta       int
		wantAfter   int
		wantClamped bool
		wantErr     error
	}{
		{config.FloorClamp, 0, -50, 0, true, nil},
		{config.FloorClamp, 30, -20, 10, false, nil},
		{config.FloorClamp, 30, -30, 0, false, nil},
		{config.FloorReject, 10, -11, 10, false, common.ErrInsufficientPoints},
		{config.FloorAllow, 10, -15, -5, false, nil},
	}
	for _, tc := range cases {
		after, clamped, err := ApplyFloor(tc.policy, tc.before, tc.delta)
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.wantAfter, after, "%s %d%+d", tc.policy, tc.before, tc.delta)
		assert.Equal(t, tc.wantClamped, clamped)
	}
}
