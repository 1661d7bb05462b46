package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_OrderedAndEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, m.Name)
		assert.Contains(t, m.SQL, "CREATE TABLE IF NOT EXISTS")
	}
}

func TestMigrations_DeclareIdempotencyKeys(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)

	var all string
	for _, m := range migrations {
		all += m.SQL
	}
	for _, key := range []string{
		"user_points_user_server_key",
		"daily_checkins_user_server_date_key",
		"daily_activity_rewards_user_server_date_key",
		"twitter_verifications_unique_action",
		"oauth_temp_storage_state_key",
		"server_config_server_key_key",
	} {
		assert.Contains(t, all, key)
	}
}

func TestEnsureSchema_SkipsAppliedMigrations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations, err := Migrations()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	for _, m := range migrations {
		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery("SELECT EXISTS").WithArgs(m.Version).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()
	}

	require.NoError(t, EnsureSchema(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
