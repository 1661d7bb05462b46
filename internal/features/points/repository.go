// Package points — repository.go выполняет запросы к user_points и points_audit_log.
// Репозиторий не держит соединение: каждый метод получает DBTX
// (транзакцию от Executor или пул для чтения).
package points

import (
	"context"
	"fmt"
	"strings"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы к таблицам баланса и аудита.
type Repository struct{}

// NewRepository создаёт репозиторий баллов.
func NewRepository() *Repository {
	return &Repository{}
}

// EnsureRow создаёт нулевой баланс, если его ещё нет.
func (r *Repository) EnsureRow(ctx context.Context, q postgres.DBTX, userID, tenantID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_points (user_id, server_id, points, total_checkins)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id, server_id) DO NOTHING
	`, userID, tenantID)
	if err != nil {
		return fmt.Errorf("ошибка создания баланса: %w", err)
	}
	return nil
}

// LockPoints читает баланс с блокировкой строки до конца транзакции.
func (r *Repository) LockPoints(ctx context.Context, q postgres.DBTX, userID, tenantID string) (int, error) {
	var points int
	err := q.QueryRow(ctx, `
		SELECT points FROM user_points
		WHERE user_id = $1 AND server_id = $2
		FOR UPDATE
	`, userID, tenantID).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки баланса: %w", err)
	}
	return points, nil
}

// SetPoints записывает новый баланс и увеличивает счётчик отметок.
func (r *Repository) SetPoints(ctx context.Context, q postgres.DBTX, userID, tenantID string, points, checkins int) error {
	tag, err := q.Exec(ctx, `
		UPDATE user_points
		SET points = $3, total_checkins = total_checkins + $4, updated_at = NOW()
		WHERE user_id = $1 AND server_id = $2
	`, userID, tenantID, points, checkins)
	if err != nil {
		return fmt.Errorf("ошибка обновления баланса: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: обновлено %d строк баланса вместо 1",
			common.ErrInvariantViolation, tag.RowsAffected())
	}
	return nil
}

// InsertAudit добавляет запись в журнал и возвращает её ID.
func (r *Repository) InsertAudit(ctx context.Context, q postgres.DBTX, e *AuditEntry) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO points_audit_log
			(operation_type, actor_id, target_user_id, server_id,
			 points_change, points_before, points_after, clamped, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.OperationType, e.ActorID, e.TargetUserID, e.TenantID,
		e.PointsChange, e.PointsBefore, e.PointsAfter, e.Clamped, e.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return id, nil
}

// HasOperation проверяет, было ли у баланса хоть одно изменение типа op.
func (r *Repository) HasOperation(ctx context.Context, q postgres.DBTX, userID, tenantID, op string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM points_audit_log
			WHERE target_user_id = $1 AND server_id = $2 AND operation_type = $3
		)
	`, userID, tenantID, op).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки аудита: %w", err)
	}
	return exists, nil
}

// GetBalance возвращает баланс. Если строки нет — pgx.ErrNoRows.
func (r *Repository) GetBalance(ctx context.Context, q postgres.DBTX, userID, tenantID string) (*Balance, error) {
	b := Balance{UserID: userID, TenantID: tenantID}
	err := q.QueryRow(ctx, `
		SELECT points, total_checkins, updated_at
		FROM user_points
		WHERE user_id = $1 AND server_id = $2
	`, userID, tenantID).Scan(&b.Points, &b.TotalCheckins, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Leaderboard возвращает топ пользователей сервера по баллам.
func (r *Repository) Leaderboard(ctx context.Context, q postgres.DBTX, tenantID string, limit int) ([]*Balance, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, points, total_checkins, updated_at
		FROM user_points
		WHERE server_id = $1
		ORDER BY points DESC, user_id
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рейтинга: %w", err)
	}
	defer rows.Close()

	var result []*Balance
	for rows.Next() {
		b := Balance{TenantID: tenantID}
		if err := rows.Scan(&b.UserID, &b.Points, &b.TotalCheckins, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования рейтинга: %w", err)
		}
		b.Rank = len(result) + 1
		result = append(result, &b)
	}
	return result, rows.Err()
}

const auditColumns = `id, operation_type, actor_id, target_user_id, server_id,
	points_change, points_before, points_after, clamped, reason, created_at`

// AuditLog возвращает записи журнала сервера, новые первыми.
func (r *Repository) AuditLog(ctx context.Context, q postgres.DBTX, f AuditFilter) ([]*AuditEntry, error) {
	where := []string{"server_id = $1"}
	args := []any{f.TenantID}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.TargetID != "" {
		args = append(args, f.TargetID)
		where = append(where, fmt.Sprintf("target_user_id = $%d", len(args)))
	}
	args = append(args, f.Limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM points_audit_log
		WHERE %s
		ORDER BY id DESC
		LIMIT $%d
	`, auditColumns, strings.Join(where, " AND "), len(args))

	return r.queryAudit(ctx, q, query, args...)
}

// AuditTrail возвращает всю историю одного баланса в порядке записи.
func (r *Repository) AuditTrail(ctx context.Context, q postgres.DBTX, userID, tenantID string) ([]*AuditEntry, error) {
	return r.queryAudit(ctx, q, `
		SELECT `+auditColumns+`
		FROM points_audit_log
		WHERE target_user_id = $1 AND server_id = $2
		ORDER BY id
	`, userID, tenantID)
}

// Accounts перечисляет все балансы, включая те, у которых есть только записи аудита.
func (r *Repository) Accounts(ctx context.Context, q postgres.DBTX) ([]Account, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, server_id FROM user_points
		UNION
		SELECT target_user_id, server_id FROM points_audit_log
		ORDER BY 2, 1
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка балансов: %w", err)
	}
	defer rows.Close()

	var result []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.UserID, &a.TenantID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования баланса: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *Repository) queryAudit(ctx context.Context, q postgres.DBTX, query string, args ...any) ([]*AuditEntry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аудита: %w", err)
	}
	defer rows.Close()

	var result []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.OperationType, &e.ActorID, &e.TargetUserID, &e.TenantID,
			&e.PointsChange, &e.PointsBefore, &e.PointsAfter, &e.Clamped, &e.Reason, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования аудита: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
