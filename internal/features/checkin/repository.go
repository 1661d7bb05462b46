// Package checkin — repository.go выполняет запросы к таблице daily_checkins.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы к отметкам.
type Repository struct{}

// NewRepository создаёт репозиторий отметок.
func NewRepository() *Repository {
	return &Repository{}
}

const recordColumns = `user_id, server_id, checkin_date, points_earned, streak_count, created_at`

// PreviousBefore возвращает последнюю отметку строго до даты day (nil, если нет).
func (r *Repository) PreviousBefore(ctx context.Context, q postgres.DBTX, userID, tenantID string, day time.Time) (*Record, error) {
	rec, err := r.scanOne(q.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM daily_checkins
		WHERE user_id = $1 AND server_id = $2 AND checkin_date < $3
		ORDER BY checkin_date DESC
		LIMIT 1
	`, userID, tenantID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прошлой отметки: %w", err)
	}
	return rec, nil
}

// Latest возвращает самую свежую отметку (nil, если отметок нет).
func (r *Repository) Latest(ctx context.Context, q postgres.DBTX, userID, tenantID string) (*Record, error) {
	rec, err := r.scanOne(q.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM daily_checkins
		WHERE user_id = $1 AND server_id = $2
		ORDER BY checkin_date DESC
		LIMIT 1
	`, userID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последней отметки: %w", err)
	}
	return rec, nil
}

// Get возвращает отметку за конкретный день. Если нет — pgx.ErrNoRows.
func (r *Repository) Get(ctx context.Context, q postgres.DBTX, userID, tenantID string, day time.Time) (*Record, error) {
	return r.scanOne(q.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM daily_checkins
		WHERE user_id = $1 AND server_id = $2 AND checkin_date = $3
	`, userID, tenantID, day))
}

// Insert добавляет отметку. Повтор за тот же день нарушает ConstraintDaily.
func (r *Repository) Insert(ctx context.Context, q postgres.DBTX, rec *Record) error {
	_, err := q.Exec(ctx, `
		INSERT INTO daily_checkins (user_id, server_id, checkin_date, points_earned, streak_count)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.UserID, rec.TenantID, rec.Date, rec.PointsEarned, rec.Streak)
	if err != nil {
		return fmt.Errorf("ошибка записи отметки: %w", err)
	}
	return nil
}

// History возвращает последние отметки, свежие первыми.
func (r *Repository) History(ctx context.Context, q postgres.DBTX, userID, tenantID string, limit int) ([]*Record, error) {
	rows, err := q.Query(ctx, `
		SELECT `+recordColumns+`
		FROM daily_checkins
		WHERE user_id = $1 AND server_id = $2
		ORDER BY checkin_date DESC
		LIMIT $3
	`, userID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории отметок: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отметки: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.UserID, &rec.TenantID, &rec.Date, &rec.PointsEarned, &rec.Streak, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
