package tenantcfg

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

var testDefaults = Defaults(&config.Config{
	CheckinBasePoints:   10,
	CheckinWeeklyBonus:  5,
	CheckinMaxPoints:    100,
	ActivityWindow:      6 * time.Hour,
	ActivityThreshold:   20,
	ActivityBonusPoints: 15,
	SocialLikePoints:    5,
	SocialRetweetPoints: 10,
	SocialReplyPoints:   15,
	SocialTripleBonus:   20,
})

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	exec := postgres.NewExecutor(mock, postgres.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond})
	return NewService(exec, NewRepository(), testDefaults), mock
}

func entryRows(entries ...Entry) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"server_id", "config_key", "config_value", "updated_at"})
	for _, e := range entries {
		rows.AddRow(e.TenantID, e.Key, e.Value, time.Time{})
	}
	return rows
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue(KeyActivityThreshold, "30"))
	assert.NoError(t, ValidateValue(KeyActivityWindow, "90m"))
	assert.NoError(t, ValidateValue(KeyCheckinWeeklyBonus, "0"))

	assert.ErrorIs(t, ValidateValue("casino_rtp", "96"), common.ErrUnknownConfigKey)
	assert.ErrorIs(t, ValidateValue(KeyActivityThreshold, "0"), common.ErrInvalidConfigValue)
	assert.ErrorIs(t, ValidateValue(KeyActivityThreshold, "много"), common.ErrInvalidConfigValue)
	assert.ErrorIs(t, ValidateValue(KeyActivityWindow, "-1h"), common.ErrInvalidConfigValue)
	assert.ErrorIs(t, ValidateValue(KeyCheckinBasePoints, "-3"), common.ErrInvalidInput)
}

func TestSet_RejectsBeforeWrite(t *testing.T) {
	svc, mock := newTestService(t)

	err := svc.Set(context.Background(), "s1", KeyActivityWindow, "soon")
	assert.ErrorIs(t, err, common.ErrInvalidConfigValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSet_Upserts(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO server_config").WithArgs("s1", KeyActivityThreshold, "25").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, svc.Set(context.Background(), "s1", KeyActivityThreshold, "25"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettings_LayersGlobalThenTenant(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("FROM server_config").WithArgs([]string{common.GlobalTenant, "s1"}).
		WillReturnRows(entryRows(
			Entry{TenantID: common.GlobalTenant, Key: KeyActivityThreshold, Value: "30"},
			Entry{TenantID: common.GlobalTenant, Key: KeyCheckinBasePoints, Value: "12"},
			Entry{TenantID: "s1", Key: KeyActivityThreshold, Value: "5"},
			Entry{TenantID: "s1", Key: "legacy_key", Value: "x"},
		))

	s, err := svc.Settings(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, s.ActivityThreshold)
	assert.Equal(t, 12, s.CheckinBasePoints)
	assert.Equal(t, 6*time.Hour, s.ActivityWindow)
	assert.Equal(t, 15, s.ActivityBonusPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettings_MalformedStoredValueIsError(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("FROM server_config").WithArgs([]string{common.GlobalTenant, "s1"}).
		WillReturnRows(entryRows(Entry{TenantID: "s1", Key: KeyActivityWindow, Value: "полдня"}))

	_, err := svc.Settings(context.Background(), "s1")
	assert.ErrorIs(t, err, common.ErrInvalidConfigValue)
}

func TestSettings_GlobalOnly(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("FROM server_config").WithArgs([]string{common.GlobalTenant}).
		WillReturnRows(entryRows())

	s, err := svc.Settings(context.Background(), common.GlobalTenant)
	require.NoError(t, err)
	assert.Equal(t, testDefaults, *s)
}

func TestGet_Missing(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT config_value FROM server_config").WithArgs("s1", KeyCheckinMaxPoints).
		WillReturnRows(pgxmock.NewRows([]string{"config_value"}))

	_, ok, err := svc.Get(context.Background(), "s1", KeyCheckinMaxPoints)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApply_MaxBelowBaseIsError(t *testing.T) {
	_, _, err := Apply(testDefaults, []Entry{{TenantID: "s1", Key: KeyCheckinMaxPoints, Value: "5"}})
	assert.ErrorIs(t, err, common.ErrInvalidConfigValue)
}

func TestKeysSorted(t *testing.T) {
	k := Keys()
	assert.Contains(t, k, KeyActivityWindow)
	assert.IsIncreasing(t, k)
}
