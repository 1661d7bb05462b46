// Package config загружает конфигурацию леджера из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Политики нижней границы баланса (что делать, если списание уводит в минус).
const (
	FloorClamp  = "clamp"  // обрезать до нуля и пометить запись аудита
	FloorReject = "reject" // отклонить операцию целиком
	FloorAllow  = "allow"  // разрешить отрицательный баланс
)

// Config содержит ВСЕ настройки процесса.
type Config struct {
	// --- Database ---
	// Если задан DATABASE_URL — он важнее отдельных DB_* полей.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"postgres"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"ledger"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME" default:"ledger"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`

	// Размер пула: 18 максимум, чтобы оставить пару соединений хостингу
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"18"`
	DBMinConns         int32         `envconfig:"DB_MIN_CONNS" default:"5"`
	DBMaxConnIdleTime  time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DBMaxConnLifetime  time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`
	DBAcquireTimeout   time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"5s"`

	// --- Retry ---
	DBRetryMaxAttempts     int           `envconfig:"DB_RETRY_MAX_ATTEMPTS" default:"3"`
	DBRetryInitialInterval time.Duration `envconfig:"DB_RETRY_INITIAL_INTERVAL" default:"100ms"`
	DBRetryMaxInterval     time.Duration `envconfig:"DB_RETRY_MAX_INTERVAL" default:"2s"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	// Граница календарного дня для чекинов и дневных наград
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- Ledger ---
	LedgerBalanceFloor string `envconfig:"LEDGER_BALANCE_FLOOR" default:"clamp"`
	LedgerMaxDelta     int    `envconfig:"LEDGER_MAX_DELTA" default:"10000"`

	// --- Checkin ---
	CheckinBasePoints  int `envconfig:"CHECKIN_BASE_POINTS" default:"10"`
	CheckinWeeklyBonus int `envconfig:"CHECKIN_WEEKLY_BONUS" default:"5"`
	CheckinMaxPoints   int `envconfig:"CHECKIN_MAX_POINTS" default:"100"`

	// --- Activity ---
	ActivityWindow      time.Duration `envconfig:"ACTIVITY_WINDOW" default:"6h"`
	ActivityThreshold   int           `envconfig:"ACTIVITY_THRESHOLD" default:"20"`
	ActivityBonusPoints int           `envconfig:"ACTIVITY_BONUS_POINTS" default:"15"`
	MessageRetention    time.Duration `envconfig:"MESSAGE_RETENTION" default:"168h"`
	// Баллы за каждое из первых MessageDailyLimit сообщений дня
	MessagePoints     int `envconfig:"MESSAGE_POINTS" default:"5"`
	MessageDailyLimit int `envconfig:"MESSAGE_DAILY_LIMIT" default:"3"`

	// --- Social ---
	SocialLikePoints    int `envconfig:"SOCIAL_LIKE_POINTS" default:"5"`
	SocialRetweetPoints int `envconfig:"SOCIAL_RETWEET_POINTS" default:"10"`
	SocialReplyPoints   int `envconfig:"SOCIAL_REPLY_POINTS" default:"15"`
	SocialTripleBonus   int `envconfig:"SOCIAL_TRIPLE_BONUS" default:"20"`
	SocialBindingBonus  int `envconfig:"SOCIAL_BINDING_BONUS" default:"20"`
	// 32 байта в hex — ключ для шифрования OAuth-токенов в базе
	SocialTokenKey string `envconfig:"SOCIAL_TOKEN_KEY" required:"true"`

	// --- OAuth ---
	OAuthStateTTL time.Duration `envconfig:"OAUTH_STATE_TTL" default:"10m"`

	// --- Jobs (cron) ---
	JobsHandshakeSweep string `envconfig:"JOBS_HANDSHAKE_SWEEP" default:"@every 1m"`
	JobsMessageCleanup string `envconfig:"JOBS_MESSAGE_CLEANUP" default:"0 4 * * *"`
	JobsReconcile      string `envconfig:"JOBS_RECONCILE" default:"30 4 * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс для календарных дат.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", c.AppTimezone, err)
	}
	return loc, nil
}

// TokenKey декодирует SOCIAL_TOKEN_KEY.
func (c *Config) TokenKey() ([]byte, error) {
	key, err := hex.DecodeString(c.SocialTokenKey)
	if err != nil {
		return nil, fmt.Errorf("SOCIAL_TOKEN_KEY не hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SOCIAL_TOKEN_KEY должен быть 32 байта, получено %d", len(key))
	}
	return key, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.DBRetryMaxAttempts < 1 {
		return fmt.Errorf("DB_RETRY_MAX_ATTEMPTS должен быть >= 1")
	}
	if c.DBRetryInitialInterval <= 0 || c.DBRetryMaxInterval < c.DBRetryInitialInterval {
		return fmt.Errorf("некорректные DB_RETRY_INITIAL_INTERVAL/DB_RETRY_MAX_INTERVAL")
	}
	if c.DBAcquireTimeout <= 0 {
		return fmt.Errorf("DB_ACQUIRE_TIMEOUT должен быть > 0")
	}
	switch c.LedgerBalanceFloor {
	case FloorClamp, FloorReject, FloorAllow:
	default:
		return fmt.Errorf("LEDGER_BALANCE_FLOOR: неизвестная политика %q", c.LedgerBalanceFloor)
	}
	if c.LedgerMaxDelta <= 0 {
		return fmt.Errorf("LEDGER_MAX_DELTA должен быть > 0")
	}
	if c.ActivityWindow <= 0 || c.ActivityThreshold <= 0 {
		return fmt.Errorf("ACTIVITY_WINDOW и ACTIVITY_THRESHOLD должны быть > 0")
	}
	if c.MessagePoints < 0 || c.MessageDailyLimit < 0 {
		return fmt.Errorf("MESSAGE_POINTS и MESSAGE_DAILY_LIMIT не могут быть отрицательными")
	}
	if c.OAuthStateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL должен быть > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.TokenKey(); err != nil {
		return err
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
