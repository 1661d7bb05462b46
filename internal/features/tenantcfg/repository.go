// Package tenantcfg — repository.go выполняет запросы к таблице server_config.
package tenantcfg

import (
	"context"
	"fmt"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы к настройкам серверов.
type Repository struct{}

// NewRepository создаёт репозиторий настроек.
func NewRepository() *Repository {
	return &Repository{}
}

// Upsert сохраняет значение. Последняя запись побеждает.
func (r *Repository) Upsert(ctx context.Context, q postgres.DBTX, tenantID, key, value string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO server_config (server_id, config_key, config_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (server_id, config_key)
		DO UPDATE SET config_value = EXCLUDED.config_value, updated_at = NOW()
	`, tenantID, key, value)
	if err != nil {
		return fmt.Errorf("ошибка сохранения настройки: %w", err)
	}
	return nil
}

// Get возвращает значение. Если ключа нет — pgx.ErrNoRows.
func (r *Repository) Get(ctx context.Context, q postgres.DBTX, tenantID, key string) (string, error) {
	var value string
	err := q.QueryRow(ctx, `
		SELECT config_value FROM server_config
		WHERE server_id = $1 AND config_key = $2
	`, tenantID, key).Scan(&value)
	return value, err
}

// Delete удаляет значение и сообщает, было ли оно.
func (r *Repository) Delete(ctx context.Context, q postgres.DBTX, tenantID, key string) (bool, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM server_config WHERE server_id = $1 AND config_key = $2
	`, tenantID, key)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления настройки: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List возвращает записи для нескольких серверов в порядке перечисления tenantIDs.
// Для Settings это global, затем сам сервер: поздние записи перекрывают ранние.
func (r *Repository) List(ctx context.Context, q postgres.DBTX, tenantIDs ...string) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT server_id, config_key, config_value, updated_at
		FROM server_config
		WHERE server_id = ANY($1)
		ORDER BY array_position($1, server_id), config_key
	`, tenantIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TenantID, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования настройки: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
