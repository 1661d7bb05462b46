// Package moderation — repository.go выполняет запросы к таблице warns.
package moderation

import (
	"context"
	"fmt"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы предупреждений.
type Repository struct{}

// NewRepository создаёт репозиторий.
func NewRepository() *Repository {
	return &Repository{}
}

// Insert добавляет предупреждение и возвращает его ID.
func (r *Repository) Insert(ctx context.Context, q postgres.DBTX, w *Warning) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO warns (user_id, server_id, moderator_id, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, w.UserID, w.TenantID, w.ModeratorID, w.Reason).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка добавления предупреждения: %w", err)
	}
	return id, nil
}

// Delete удаляет предупреждение сервера по ID.
func (r *Repository) Delete(ctx context.Context, q postgres.DBTX, tenantID string, id int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM warns WHERE id = $1 AND server_id = $2
	`, id, tenantID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления предупреждения: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List возвращает предупреждения пользователя, свежие первыми.
func (r *Repository) List(ctx context.Context, q postgres.DBTX, userID, tenantID string) ([]*Warning, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, server_id, moderator_id, reason, created_at
		FROM warns
		WHERE user_id = $1 AND server_id = $2
		ORDER BY created_at DESC, id DESC
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения предупреждений: %w", err)
	}
	defer rows.Close()

	var result []*Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.ID, &w.UserID, &w.TenantID, &w.ModeratorID, &w.Reason, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования предупреждения: %w", err)
		}
		result = append(result, &w)
	}
	return result, rows.Err()
}

// Count считает предупреждения пользователя.
func (r *Repository) Count(ctx context.Context, q postgres.DBTX, userID, tenantID string) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM warns WHERE user_id = $1 AND server_id = $2
	`, userID, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта предупреждений: %w", err)
	}
	return count, nil
}
