// Package activity — service.go содержит логику бонуса за активность.
//
// Подсчёт сообщений, запись награды и начисление баллов — одна единица работы.
// Единственная защита от двойной награды — UNIQUE-ключ на (пользователь,
// сервер, день); предварительная проверка лишь экономит транзакцию.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
	"serotonyl.ru/rewards-ledger/internal/features/points"
	"serotonyl.ru/rewards-ledger/internal/features/tenantcfg"
)

// Ledger — начисление баллов внутри транзакции.
type Ledger interface {
	ApplyInTx(ctx context.Context, q postgres.DBTX, c points.Change, checkins int) (*points.Result, error)
}

// SettingsSource отдаёт настройки сервера.
type SettingsSource interface {
	Settings(ctx context.Context, tenantID string) (*tenantcfg.Settings, error)
}

// Service — движок наград за активность.
type Service struct {
	exec      *postgres.Executor
	repo      *Repository
	ledger    Ledger
	settings  SettingsSource
	loc       *time.Location
	retention time.Duration
}

// NewService создаёт движок. retention — сколько хранить журнал сообщений.
func NewService(exec *postgres.Executor, repo *Repository, ledger Ledger, settings SettingsSource,
	loc *time.Location, retention time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		exec:      exec,
		repo:      repo,
		ledger:    ledger,
		settings:  settings,
		loc:       loc,
		retention: retention,
	}
}

// RecordMessage записывает сообщение, начисляет баллы за него
// и сразу оценивает активность.
func (s *Service) RecordMessage(ctx context.Context, userID, tenantID string, at time.Time) (*Evaluation, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "activity.record_message",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			return s.repo.InsertMessage(ctx, tx, userID, tenantID, at)
		},
	})
	if err != nil {
		return nil, err
	}
	credited, err := s.CreditMessage(ctx, userID, tenantID, at)
	if err != nil {
		return nil, err
	}
	eval, err := s.Evaluate(ctx, userID, tenantID, at)
	if err != nil {
		return nil, err
	}
	eval.MessagePoints = credited
	return eval, nil
}

// CreditMessage начисляет баллы за сообщение, пока не выбран дневной лимит.
// Возвращает начисленные баллы (0 — лимит исчерпан или выключен).
//
// Порядковый номер берётся из числа уже оплаченных сообщений; если параллельное
// сообщение заняло тот же номер, единица работы повторяется со свежим счётчиком.
func (s *Service) CreditMessage(ctx context.Context, userID, tenantID string, at time.Time) (int, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return 0, err
	}
	settings, err := s.settings.Settings(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения настроек сервера: %w", err)
	}
	limit, reward := settings.MessageDailyLimit, settings.MessagePoints
	if limit <= 0 || reward <= 0 {
		return 0, nil
	}
	day := common.DateIn(at, s.loc)

	for attempt := 0; attempt < limit; attempt++ {
		var ordinal int
		outcome, err := s.exec.Execute(ctx, postgres.Unit{
			Name:            "activity.credit_message",
			IdempotencyKeys: []string{ConstraintMessageOrdinal},
			Fn: func(ctx context.Context, tx pgx.Tx) error {
				ordinal = 0
				paid, err := s.repo.CountMessageRewards(ctx, tx, userID, tenantID, day)
				if err != nil {
					return err
				}
				if paid >= limit {
					return nil
				}
				if err := s.repo.InsertMessageReward(ctx, tx, &MessageReward{
					UserID:       userID,
					TenantID:     tenantID,
					Date:         day,
					Ordinal:      paid + 1,
					PointsEarned: reward,
					MessageTime:  at,
				}); err != nil {
					return err
				}
				if _, err := s.ledger.ApplyInTx(ctx, tx, points.Change{
					UserID:    userID,
					TenantID:  tenantID,
					Delta:     reward,
					ActorID:   points.SystemActor,
					Reason:    fmt.Sprintf("сообщение %d/%d за %s", paid+1, limit, common.FormatDate(day)),
					Operation: points.OpMessage,
				}, 0); err != nil {
					return err
				}
				ordinal = paid + 1
				return nil
			},
		})
		if err != nil {
			return 0, err
		}
		if outcome == postgres.Conflicted {
			continue
		}
		if ordinal == 0 {
			return 0, nil
		}
		log.WithFields(log.Fields{
			"user_id":   userID,
			"server_id": tenantID,
			"ordinal":   ordinal,
			"points":    reward,
		}).Debug("Баллы за сообщение начислены")
		return reward, nil
	}
	return 0, nil
}

// Evaluate проверяет порог и начисляет бонус, если он ещё не выдан сегодня.
func (s *Service) Evaluate(ctx context.Context, userID, tenantID string, now time.Time) (*Evaluation, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	settings, err := s.settings.Settings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек сервера: %w", err)
	}
	today := common.DateIn(now, s.loc)

	var rewarded bool
	err = s.exec.Read(ctx, "activity.has_reward", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		rewarded, err = s.repo.HasReward(ctx, q, userID, tenantID, today)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rewarded {
		return &Evaluation{Status: AlreadyRewarded, Threshold: settings.ActivityThreshold}, nil
	}

	eval := &Evaluation{Threshold: settings.ActivityThreshold}
	outcome, err := s.exec.Execute(ctx, postgres.Unit{
		Name:            "activity.evaluate",
		IdempotencyKeys: []string{ConstraintDaily},
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			count, err := s.repo.CountInWindow(ctx, tx, userID, tenantID, now.Add(-settings.ActivityWindow), now)
			if err != nil {
				return err
			}
			eval.MessageCount = count
			if count < settings.ActivityThreshold {
				eval.Status = BelowThreshold
				eval.PointsEarned = 0
				return nil
			}

			bonus := settings.ActivityBonusPoints
			if err := s.repo.InsertReward(ctx, tx, &Reward{
				UserID:       userID,
				TenantID:     tenantID,
				Date:         today,
				PointsEarned: bonus,
				MessageCount: count,
				RewardTime:   now,
			}); err != nil {
				return err
			}
			if bonus > 0 {
				if _, err := s.ledger.ApplyInTx(ctx, tx, points.Change{
					UserID:    userID,
					TenantID:  tenantID,
					Delta:     bonus,
					ActorID:   points.SystemActor,
					Reason:    fmt.Sprintf("активность %s: %d сообщений", common.FormatDate(today), count),
					Operation: points.OpActivity,
				}, 0); err != nil {
					return err
				}
			}
			eval.Status = Rewarded
			eval.PointsEarned = bonus
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if outcome == postgres.Conflicted {
		return &Evaluation{Status: AlreadyRewarded, MessageCount: eval.MessageCount, Threshold: eval.Threshold}, nil
	}
	if eval.Status == Rewarded {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"server_id": tenantID,
			"messages":  eval.MessageCount,
			"points":    eval.PointsEarned,
		}).Info("Бонус за активность начислен")
	}
	return eval, nil
}

// Stats возвращает количество сообщений в окне и сегодняшнюю награду.
func (s *Service) Stats(ctx context.Context, userID, tenantID string, now time.Time) (*Stats, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	settings, err := s.settings.Settings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек сервера: %w", err)
	}

	st := &Stats{
		WindowStart: now.Add(-settings.ActivityWindow).UTC(),
		WindowEnd:   now.UTC(),
		Threshold:   settings.ActivityThreshold,
	}
	err = s.exec.Read(ctx, "activity.stats", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		st.MessageCount, err = s.repo.CountInWindow(ctx, q, userID, tenantID, st.WindowStart, st.WindowEnd)
		if err != nil {
			return err
		}
		st.TodayReward, err = s.repo.GetReward(ctx, q, userID, tenantID, common.DateIn(now, s.loc))
		return err
	})
	if err != nil {
		return nil, err
	}
	if st.TodayReward == nil && st.MessageCount < st.Threshold {
		st.Remaining = st.Threshold - st.MessageCount
	}
	return st, nil
}

// Cleanup удаляет записи журнала сообщений старше срока хранения.
func (s *Service) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention)
	var deleted int64
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "activity.cleanup",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			deleted, err = s.repo.DeleteMessagesBefore(ctx, tx, cutoff)
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"deleted": deleted,
		"before":  cutoff.UTC().Format(time.RFC3339),
	}).Info("Журнал сообщений очищен")
	return deleted, nil
}
