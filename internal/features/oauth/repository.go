// Package oauth — repository.go выполняет запросы к oauth_temp_storage.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы хранилища рукопожатий.
type Repository struct{}

// NewRepository создаёт репозиторий.
func NewRepository() *Repository {
	return &Repository{}
}

// Insert сохраняет рукопожатие. Повтор state нарушает ConstraintState.
func (r *Repository) Insert(ctx context.Context, q postgres.DBTX, h *Handshake) error {
	_, err := q.Exec(ctx, `
		INSERT INTO oauth_temp_storage (state, code_verifier, discord_user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, h.State, h.CodeVerifier, h.UserID, h.ExpiresAt, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения рукопожатия: %w", err)
	}
	return nil
}

// Take удаляет строку и возвращает её. nil, если строки не было.
func (r *Repository) Take(ctx context.Context, q postgres.DBTX, state string) (*Handshake, error) {
	h := Handshake{State: state}
	err := q.QueryRow(ctx, `
		DELETE FROM oauth_temp_storage
		WHERE state = $1
		RETURNING code_verifier, discord_user_id, expires_at, created_at
	`, state).Scan(&h.CodeVerifier, &h.UserID, &h.ExpiresAt, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения рукопожатия: %w", err)
	}
	return &h, nil
}

// DeleteExpired удаляет строки с expires_at <= now.
func (r *Repository) DeleteExpired(ctx context.Context, q postgres.DBTX, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM oauth_temp_storage WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки рукопожатий: %w", err)
	}
	return tag.RowsAffected(), nil
}
