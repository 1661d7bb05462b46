// Package earlyrole — repository.go выполняет запросы к early_role_members.
package earlyrole

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы реестра ранней роли.
type Repository struct{}

// NewRepository создаёт репозиторий.
func NewRepository() *Repository {
	return &Repository{}
}

// Upsert добавляет участника. Для существующего обновляет кошелёк,
// только если передан новый (nil сохраняет прежний).
func (r *Repository) Upsert(ctx context.Context, q postgres.DBTX, userID, tenantID string, wallet *string) (*Member, error) {
	m := Member{UserID: userID, TenantID: tenantID}
	err := q.QueryRow(ctx, `
		INSERT INTO early_role_members (user_id, guild_id, wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			wallet_address = COALESCE(EXCLUDED.wallet_address, early_role_members.wallet_address),
			updated_at = NOW()
		RETURNING wallet_address, created_at, updated_at
	`, userID, tenantID, wallet).Scan(&m.WalletAddress, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи участника ранней роли: %w", err)
	}
	return &m, nil
}

// Get возвращает участника (nil, если его нет).
func (r *Repository) Get(ctx context.Context, q postgres.DBTX, userID, tenantID string) (*Member, error) {
	m := Member{UserID: userID, TenantID: tenantID}
	err := q.QueryRow(ctx, `
		SELECT wallet_address, created_at, updated_at
		FROM early_role_members
		WHERE guild_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&m.WalletAddress, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника ранней роли: %w", err)
	}
	return &m, nil
}

// UpdateWallet меняет кошелёк участника. Пустой tenantID — на всех серверах.
func (r *Repository) UpdateWallet(ctx context.Context, q postgres.DBTX, userID, tenantID, wallet string) (int64, error) {
	query := `UPDATE early_role_members SET wallet_address = $1, updated_at = NOW() WHERE user_id = $2`
	args := []any{wallet, userID}
	if tenantID != "" {
		query += ` AND guild_id = $3`
		args = append(args, tenantID)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления кошелька: %w", err)
	}
	return tag.RowsAffected(), nil
}
