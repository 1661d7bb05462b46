// Package activity — repository.go выполняет запросы к message_logs,
// daily_activity_rewards и daily_message_rewards.
// Время хранится в TIMESTAMP без пояса, поэтому все моменты передаются в UTC.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы движка активности.
type Repository struct{}

// NewRepository создаёт репозиторий активности.
func NewRepository() *Repository {
	return &Repository{}
}

// InsertMessage записывает факт сообщения.
func (r *Repository) InsertMessage(ctx context.Context, q postgres.DBTX, userID, tenantID string, at time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO message_logs (user_id, server_id, message_time)
		VALUES ($1, $2, $3)
	`, userID, tenantID, at.UTC())
	if err != nil {
		return fmt.Errorf("ошибка записи сообщения: %w", err)
	}
	return nil
}

// CountInWindow считает сообщения в полуинтервале (from, to].
func (r *Repository) CountInWindow(ctx context.Context, q postgres.DBTX, userID, tenantID string, from, to time.Time) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM message_logs
		WHERE user_id = $1 AND server_id = $2
		  AND message_time > $3 AND message_time <= $4
	`, userID, tenantID, from.UTC(), to.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта сообщений: %w", err)
	}
	return count, nil
}

// HasReward проверяет, была ли награда за день.
func (r *Repository) HasReward(ctx context.Context, q postgres.DBTX, userID, tenantID string, day time.Time) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM daily_activity_rewards
			WHERE user_id = $1 AND server_id = $2 AND reward_date = $3
		)
	`, userID, tenantID, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки награды: %w", err)
	}
	return exists, nil
}

// InsertReward записывает награду. Повтор за день нарушает ConstraintDaily.
func (r *Repository) InsertReward(ctx context.Context, q postgres.DBTX, rw *Reward) error {
	_, err := q.Exec(ctx, `
		INSERT INTO daily_activity_rewards
			(user_id, server_id, reward_date, points_earned, message_count_when_rewarded, reward_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rw.UserID, rw.TenantID, rw.Date, rw.PointsEarned, rw.MessageCount, rw.RewardTime.UTC())
	if err != nil {
		return fmt.Errorf("ошибка записи награды: %w", err)
	}
	return nil
}

// GetReward возвращает награду за день (nil, если не было).
func (r *Repository) GetReward(ctx context.Context, q postgres.DBTX, userID, tenantID string, day time.Time) (*Reward, error) {
	rw := Reward{UserID: userID, TenantID: tenantID}
	err := q.QueryRow(ctx, `
		SELECT reward_date, points_earned, message_count_when_rewarded, reward_time
		FROM daily_activity_rewards
		WHERE user_id = $1 AND server_id = $2 AND reward_date = $3
	`, userID, tenantID, day).Scan(&rw.Date, &rw.PointsEarned, &rw.MessageCount, &rw.RewardTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения награды: %w", err)
	}
	return &rw, nil
}

// DeleteMessagesBefore удаляет старые записи журнала сообщений.
func (r *Repository) DeleteMessagesBefore(ctx context.Context, q postgres.DBTX, before time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM message_logs WHERE message_time < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки журнала сообщений: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountMessageRewards считает оплаченные сообщения за день.
func (r *Repository) CountMessageRewards(ctx context.Context, q postgres.DBTX, userID, tenantID string, day time.Time) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM daily_message_rewards
		WHERE user_id = $1 AND server_id = $2 AND reward_date = $3
	`, userID, tenantID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта оплаченных сообщений: %w", err)
	}
	return count, nil
}

// InsertMessageReward записывает начисление за сообщение.
// Занятый порядковый номер нарушает ConstraintMessageOrdinal.
func (r *Repository) InsertMessageReward(ctx context.Context, q postgres.DBTX, mr *MessageReward) error {
	_, err := q.Exec(ctx, `
		INSERT INTO daily_message_rewards
			(user_id, server_id, reward_date, ordinal, points_earned, message_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, mr.UserID, mr.TenantID, mr.Date, mr.Ordinal, mr.PointsEarned, mr.MessageTime.UTC())
	if err != nil {
		return fmt.Errorf("ошибка записи начисления за сообщение: %w", err)
	}
	return nil
}
