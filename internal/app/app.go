// Package app инициализирует все компоненты леджера.
// app.go — точка сборки: создаёт пул и слой выполнения, репозитории,
// сервисы и планировщик и собирает всё в один объект App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/config"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
	"serotonyl.ru/rewards-ledger/internal/features/activity"
	"serotonyl.ru/rewards-ledger/internal/features/checkin"
	"serotonyl.ru/rewards-ledger/internal/features/earlyrole"
	"serotonyl.ru/rewards-ledger/internal/features/moderation"
	"serotonyl.ru/rewards-ledger/internal/features/oauth"
	"serotonyl.ru/rewards-ledger/internal/features/points"
	"serotonyl.ru/rewards-ledger/internal/features/social"
	"serotonyl.ru/rewards-ledger/internal/features/tenantcfg"
	"serotonyl.ru/rewards-ledger/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	DB       *pgxpool.Pool
	Executor *postgres.Executor
	Services *Services

	Scheduler *jobs.Scheduler
}

// Services — сервисы леджера поверх одного Executor.
type Services struct {
	Points     *points.Service
	TenantCfg  *tenantcfg.Service
	Checkin    *checkin.Service
	Activity   *activity.Service
	Social     *social.Service
	OAuth      *oauth.Store
	Moderation *moderation.Service
	EarlyRole  *earlyrole.Service
}

// NewServices собирает сервисы. Порядок важен: движки зависят от баланса и настроек.
func NewServices(exec *postgres.Executor, cfg *config.Config) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	key, err := cfg.TokenKey()
	if err != nil {
		return nil, err
	}
	sealer, err := social.NewSealer(key)
	if err != nil {
		return nil, err
	}

	pointsService := points.NewService(exec, points.NewRepository(), cfg.LedgerBalanceFloor, cfg.LedgerMaxDelta)
	tenantService := tenantcfg.NewService(exec, tenantcfg.NewRepository(), tenantcfg.Defaults(cfg))

	return &Services{
		Points:    pointsService,
		TenantCfg: tenantService,
		Checkin:   checkin.NewService(exec, checkin.NewRepository(), pointsService, tenantService, loc),
		Activity: activity.NewService(exec, activity.NewRepository(), pointsService, tenantService,
			loc, cfg.MessageRetention),
		Social: social.NewService(exec, social.NewRepository(), pointsService, tenantService,
			sealer, cfg.SocialBindingBonus),
		OAuth:      oauth.NewStore(exec, oauth.NewRepository(), cfg.OAuthStateTTL),
		Moderation: moderation.NewService(exec, moderation.NewRepository()),
		EarlyRole:  earlyrole.NewService(exec, earlyrole.NewRepository()),
	}, nil
}

// New подключается к базе и создаёт приложение. Схему не трогает: см. Migrate.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	exec := postgres.NewExecutor(pool, postgres.PolicyFromConfig(cfg))

	// === 2. Сервисы ===
	services, err := NewServices(exec, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// === 3. Планировщик задач ===
	loc, _ := cfg.Location()
	scheduler := jobs.NewScheduler(loc, services.OAuth, services.Activity, services.Points)

	return &App{
		DB:        pool,
		Executor:  exec,
		Services:  services,
		Scheduler: scheduler,
	}, nil
}

// Migrate применяет недостающие миграции.
func (a *App) Migrate(ctx context.Context) error {
	if err := postgres.EnsureSchema(ctx, a.DB); err != nil {
		return fmt.Errorf("ошибка миграций: %w", err)
	}
	return nil
}

// Close закрывает пул. Вызывается последним, после остановки планировщика.
func (a *App) Close() {
	if stats, ok := postgres.Stats(a.DB); ok {
		log.WithFields(log.Fields{
			"acquired": stats.Acquired,
			"total":    stats.Total,
		}).Info("Закрываем пул соединений")
	}
	a.DB.Close()
}
