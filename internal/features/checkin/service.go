// Package checkin — service.go содержит логику ежедневной отметки.
//
// Отметка, расчёт стрика и начисление баллов выполняются одной единицей
// работы. Повторная отметка в тот же день упирается в UNIQUE-ключ
// (user_id, server_id, checkin_date), транзакция откатывается,
// и пользователь получает сохранённую ранее отметку.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
	"serotonyl.ru/rewards-ledger/internal/features/points"
	"serotonyl.ru/rewards-ledger/internal/features/tenantcfg"
)

// Ledger — то, что нужно отметкам от баланса.
type Ledger interface {
	ApplyInTx(ctx context.Context, q postgres.DBTX, c points.Change, checkins int) (*points.Result, error)
	GetBalance(ctx context.Context, userID, tenantID string) (*points.Balance, error)
}

// SettingsSource отдаёт настройки сервера.
type SettingsSource interface {
	Settings(ctx context.Context, tenantID string) (*tenantcfg.Settings, error)
}

// Service — движок ежедневных отметок.
type Service struct {
	exec     *postgres.Executor
	repo     *Repository
	ledger   Ledger
	settings SettingsSource
	loc      *time.Location
}

// NewService создаёт сервис отметок. loc задаёт границу календарного дня.
func NewService(exec *postgres.Executor, repo *Repository, ledger Ledger, settings SettingsSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{exec: exec, repo: repo, ledger: ledger, settings: settings, loc: loc}
}

// CheckIn отмечает пользователя за календарный день момента at.
func (s *Service) CheckIn(ctx context.Context, userID, tenantID string, at time.Time) (*Result, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	settings, err := s.settings.Settings(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек сервера: %w", err)
	}
	today := common.DateIn(at, s.loc)

	var res *Result
	outcome, err := s.exec.Execute(ctx, postgres.Unit{
		Name:            "checkin.daily",
		IdempotencyKeys: []string{ConstraintDaily},
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			prev, err := s.repo.PreviousBefore(ctx, tx, userID, tenantID, today)
			if err != nil {
				return err
			}
			rec := &Record{
				UserID:   userID,
				TenantID: tenantID,
				Date:     today,
				Streak:   NextStreak(prev, today),
			}
			rec.PointsEarned = Reward(rec.Streak, settings)

			if err := s.repo.Insert(ctx, tx, rec); err != nil {
				return err
			}

			credit, err := s.ledger.ApplyInTx(ctx, tx, points.Change{
				UserID:    userID,
				TenantID:  tenantID,
				Delta:     rec.PointsEarned,
				ActorID:   points.SystemActor,
				Reason:    fmt.Sprintf("ежедневная отметка %s, стрик %d", common.FormatDate(today), rec.Streak),
				Operation: points.OpCheckin,
			}, 1)
			if err != nil {
				return err
			}

			res = &Result{
				Status:       CheckedIn,
				Date:         today,
				Streak:       rec.Streak,
				PointsEarned: rec.PointsEarned,
				TotalPoints:  credit.PointsAfter,
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if outcome == postgres.Conflicted {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"server_id": tenantID,
			"date":      common.FormatDate(today),
		}).Debug("Повторная отметка за день")
		return s.existing(ctx, userID, tenantID, today)
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"server_id": tenantID,
		"streak":    res.Streak,
		"points":    res.PointsEarned,
	}).Info("Ежедневная отметка")
	return res, nil
}

// existing собирает ответ для повторной отметки из сохранённой записи.
func (s *Service) existing(ctx context.Context, userID, tenantID string, day time.Time) (*Result, error) {
	var rec *Record
	err := s.exec.Read(ctx, "checkin.existing", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		rec, err = s.repo.Get(ctx, q, userID, tenantID, day)
		return err
	})
	if err != nil {
		// Запись есть (иначе не было бы конфликта), значит это сбой чтения
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: отметка за %s не найдена после конфликта",
				common.ErrInvariantViolation, common.FormatDate(day))
		}
		return nil, err
	}

	balance, err := s.ledger.GetBalance(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	return &Result{
		Status:       AlreadyCheckedIn,
		Date:         rec.Date,
		Streak:       rec.Streak,
		PointsEarned: rec.PointsEarned,
		TotalPoints:  balance.Points,
	}, nil
}

// History возвращает последние отметки пользователя.
func (s *Service) History(ctx context.Context, userID, tenantID string, limit int) ([]*Record, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var result []*Record
	err := s.exec.Read(ctx, "checkin.history", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		result, err = s.repo.History(ctx, q, userID, tenantID, limit)
		return err
	})
	return result, err
}

// CurrentStreak возвращает действующий стрик на момент at.
// Стрик жив, если последняя отметка сегодня или вчера; иначе 0.
func (s *Service) CurrentStreak(ctx context.Context, userID, tenantID string, at time.Time) (int, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return 0, err
	}
	today := common.DateIn(at, s.loc)

	var latest *Record
	err := s.exec.Read(ctx, "checkin.current_streak", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		latest, err = s.repo.Latest(ctx, q, userID, tenantID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	if common.SameDate(latest.Date, today) || common.SameDate(latest.Date, common.PrevDay(today)) {
		return latest.Streak, nil
	}
	return 0, nil
}
