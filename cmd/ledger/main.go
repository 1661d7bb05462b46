// Package main — точка входа фонового процесса леджера.
// Загружает конфигурацию, применяет миграции и запускает планировщик задач.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/app"
	"serotonyl.ru/rewards-ledger/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== Леджер запускается ===")

	if err := godotenv.Load(); err != nil {
		log.Debug("Файл .env не найден, читаем переменные окружения напрямую")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}
	if cfg.AppEnv == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	if err := application.Migrate(ctx); err != nil {
		log.WithError(err).Error("Не удалось применить миграции")
		return
	}

	if err := application.Scheduler.Register(ctx, cfg); err != nil {
		log.WithError(err).Error("Некорректное расписание задач")
		return
	}
	application.Scheduler.Start()
	defer application.Scheduler.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("=== Леджер готов к работе ===")

	sig := <-quit
	log.Infof("Получен сигнал %s, останавливаемся...", sig)

	// Задачи видят отменённый контекст и не начинают новых операций;
	// Stop дождётся уже запущенных, затем закроется пул.
	cancel()
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}
