package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/rewards-ledger/internal/app"
	"serotonyl.ru/rewards-ledger/internal/config"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
	"serotonyl.ru/rewards-ledger/internal/features/points"
)

func testConfig() *config.Config {
	return &config.Config{
		AppTimezone:         "UTC",
		LedgerBalanceFloor:  config.FloorClamp,
		LedgerMaxDelta:      10000,
		CheckinBasePoints:   10,
		CheckinWeeklyBonus:  5,
		CheckinMaxPoints:    100,
		ActivityWindow:      6 * time.Hour,
		ActivityThreshold:   20,
		ActivityBonusPoints: 15,
		MessageRetention:    7 * 24 * time.Hour,
		SocialLikePoints:    5,
		SocialRetweetPoints: 10,
		SocialReplyPoints:   15,
		SocialTripleBonus:   20,
		SocialBindingBonus:  20,
		SocialTokenKey:      strings.Repeat("ab", 32),
		OAuthStateTTL:       10 * time.Minute,
	}
}

// run выполняет ledgerctl поверх pgxmock.
func run(t *testing.T, mock pgxmock.PgxPoolIface, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	exec := postgres.NewExecutor(mock, postgres.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond})
	services, err := app.NewServices(exec, testConfig())
	require.NoError(t, err)

	open := func(context.Context, *RootOptions) (*Env, error) {
		return &Env{
			Services: services,
			Migrate:  func(ctx context.Context) error { return postgres.EnsureSchema(ctx, mock) },
			Close:    func() {},
		}, nil
	}

	var out, errOut bytes.Buffer
	code = Execute(context.Background(), open, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(DefaultOpener)
	commands := [][]string{
		{"schema", "apply"},
		{"points", "adjust"}, {"points", "balance"}, {"points", "leaderboard"},
		{"points", "audit"}, {"points", "reconcile"},
		{"checkin"},
		{"activity", "stats"}, {"activity", "cleanup"},
		{"social", "posts", "import"}, {"social", "posts", "list"},
		{"oauth", "sweep"},
		{"config", "set"}, {"config", "get"}, {"config", "unset"},
		{"config", "list"}, {"config", "settings"},
		{"warn", "add"}, {"warn", "list"}, {"warn", "remove"},
		{"early-role", "register"}, {"early-role", "show"}, {"early-role", "wallet"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(DefaultOpener)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestInvalidFormat(t *testing.T) {
	code, _, stderr := run(t, newMock(t), "--format", "xml", "oauth", "sweep")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "xml")
}

func TestPointsBalance_JSON(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT points, total_checkins, updated_at").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"points", "total_checkins", "updated_at"}).
			AddRow(42, 3, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	code, stdout, _ := run(t, mock, "--format", "json", "points", "balance", "--user", "u1", "--server", "s1")
	require.Equal(t, ExitSuccess, code)

	var resp struct {
		Status string         `json:"status"`
		Data   points.Balance `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 42, resp.Data.Points)
	assert.Equal(t, 3, resp.Data.TotalCheckins)
}

func TestPointsAdjust_EmptyReasonRejectedBeforeDB(t *testing.T) {
	mock := newMock(t)

	code, _, stderr := run(t, mock, "points", "adjust",
		"--user", "u1", "--server", "s1", "--delta", "10", "--actor", "m1", "--reason", " ")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "причина")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointsAdjust_Clamped(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_points").WithArgs("u1", "s1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT points FROM user_points").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"points"}).AddRow(20))
	mock.ExpectExec("UPDATE user_points").WithArgs("u1", "s1", 0, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO points_audit_log").
		WithArgs(points.OpAdminAdjust, "m1", "u1", "s1", -50, 20, 0, true, "спам").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	code, stdout, _ := run(t, mock, "points", "adjust",
		"--user", "u1", "--server", "s1", "--delta=-50", "--actor", "m1", "--reason", "спам")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "20 → 0")
	assert.Contains(t, stdout, "обрезано до нуля")
	assert.Contains(t, stdout, "#11")
}

func TestPointsReconcile_DriftExitsWithFailure(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery("SELECT points, total_checkins, updated_at").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"points", "total_checkins", "updated_at"}).AddRow(15, 0, at))
	mock.ExpectQuery("WHERE target_user_id = \\$1 AND server_id = \\$2").WithArgs("u1", "s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "operation_type", "actor_id", "target_user_id", "server_id",
			"points_change", "points_before", "points_after", "clamped", "reason", "created_at"}).
			AddRow(int64(1), points.OpAdminAdjust, "m1", "u1", "s1", 10, 0, 10, false, "бонус", at))
	mock.ExpectCommit()

	code, stdout, _ := run(t, mock, "points", "reconcile", "--user", "u1", "--server", "s1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "баланс 15, по журналу 10")
}

func TestSocialPostsImport(t *testing.T) {
	mock := newMock(t)
	file := filepath.Join(t.TempDir(), "posts.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
posts:
  - post_id: "p1"
    url: https://x.com/acme/status/1
    like_points: 7
deactivate: ["p0"]
`), 0o600))

	mock.ExpectQuery("FROM server_config").WithArgs([]string{"global", "s1"}).
		WillReturnRows(pgxmock.NewRows([]string{"server_id", "config_key", "config_value", "updated_at"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO twitter_target_tweets").
		WithArgs("s1", "p1", "https://x.com/acme/status/1", "", 7, 10, 15, 20).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE twitter_target_tweets").WithArgs("s1", "p0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	code, stdout, stderr := run(t, mock, "social", "posts", "import", file, "--server", "s1")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Сохранено постов: 1, выключено: 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSocialPostsImport_UnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "posts.yaml")
	require.NoError(t, os.WriteFile(file, []byte("post: []\n"), 0o600))

	code, _, _ := run(t, newMock(t), "social", "posts", "import", file, "--server", "s1")
	assert.Equal(t, ExitCommandError, code)
}

func TestWarnRemove_NotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM warns").WithArgs(int64(9), "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	code, _, stderr := run(t, mock, "warn", "remove", "9", "--server", "s1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "не найдено")
}

func TestConfigGet_Missing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM server_config").WithArgs("s1", "activity_threshold").
		WillReturnRows(pgxmock.NewRows([]string{"config_value"}))

	code, _, _ := run(t, mock, "config", "get", "activity_threshold", "--server", "s1")
	assert.Equal(t, ExitFailure, code)
}

func TestConfigSet_UnknownKey(t *testing.T) {
	mock := newMock(t)

	code, _, stderr := run(t, mock, "--format", "json", "config", "set", "nope", "1", "--server", "s1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, `"status":"error"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigUnsetAndList(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM server_config").WithArgs("s1", "activity_threshold").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM server_config").WithArgs([]string{"s1"}).
		WillReturnRows(pgxmock.NewRows([]string{"server_id", "config_key", "config_value", "updated_at"}).
			AddRow("s1", "checkin_base_points", "12", time.Time{}))

	code, stdout, _ := run(t, mock, "config", "unset", "activity_threshold", "--server", "s1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "activity_threshold")

	code, stdout, _ = run(t, mock, "config", "list", "--server", "s1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "checkin_base_points = 12\n", stdout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEarlyRoleShow_NotRegistered(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM early_role_members").WithArgs("s1", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"wallet_address", "created_at", "updated_at"}))

	code, _, stderr := run(t, mock, "early-role", "show", "--user", "u1", "--server", "s1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "ранней роли")
	assert.NoError(t, mock.ExpectationsWereMet())
}
