// Package tenantcfg — service.go проверяет и сохраняет настройки серверов.
// Значение проверяется при записи; при чтении Settings некорректное
// значение в базе — ошибка, а не молчаливый откат на умолчания.
package tenantcfg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Service управляет настройками серверов.
type Service struct {
	exec     *postgres.Executor
	repo     *Repository
	defaults Settings
}

// NewService создаёт сервис настроек. defaults — значения из окружения процесса.
func NewService(exec *postgres.Executor, repo *Repository, defaults Settings) *Service {
	return &Service{exec: exec, repo: repo, defaults: defaults}
}

// Set проверяет и сохраняет значение.
func (s *Service) Set(ctx context.Context, tenantID, key, value string) error {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return err
	}
	if err := ValidateValue(key, value); err != nil {
		return err
	}

	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "tenantcfg.set",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			return s.repo.Upsert(ctx, tx, tenantID, key, value)
		},
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"server_id": tenantID,
		"key":       key,
		"value":     value,
	}).Info("Настройка сервера изменена")
	return nil
}

// Get возвращает сырое значение ключа (ok=false, если не задано).
func (s *Service) Get(ctx context.Context, tenantID, key string) (string, bool, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return "", false, err
	}
	if _, known := keys[key]; !known {
		return "", false, fmt.Errorf("%w: %q", common.ErrUnknownConfigKey, key)
	}

	var value string
	found := true
	err := s.exec.Read(ctx, "tenantcfg.get", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		value, err = s.repo.Get(ctx, q, tenantID, key)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("ошибка получения настройки: %w", err)
	}
	return value, found, nil
}

// Delete удаляет значение (сервер вернётся к global/умолчаниям).
func (s *Service) Delete(ctx context.Context, tenantID, key string) (bool, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return false, err
	}
	var deleted bool
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "tenantcfg.delete",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			deleted, err = s.repo.Delete(ctx, tx, tenantID, key)
			return err
		},
	})
	return deleted, err
}

// Settings собирает настройки сервера: умолчания процесса, затем global, затем сам сервер.
func (s *Service) Settings(ctx context.Context, tenantID string) (*Settings, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return nil, err
	}
	scope := []string{common.GlobalTenant}
	if tenantID != common.GlobalTenant {
		scope = append(scope, tenantID)
	}

	var entries []Entry
	err := s.exec.Read(ctx, "tenantcfg.settings", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		entries, err = s.repo.List(ctx, q, scope...)
		return err
	})
	if err != nil {
		return nil, err
	}

	settings, skipped, err := Apply(s.defaults, entries)
	if len(skipped) > 0 {
		log.WithFields(log.Fields{
			"server_id": tenantID,
			"keys":      skipped,
		}).Debug("Пропущены неизвестные ключи настроек")
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Entries возвращает сырые записи сервера (без global).
func (s *Service) Entries(ctx context.Context, tenantID string) ([]Entry, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return nil, err
	}
	var entries []Entry
	err := s.exec.Read(ctx, "tenantcfg.entries", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		entries, err = s.repo.List(ctx, q, tenantID)
		return err
	})
	return entries, err
}
