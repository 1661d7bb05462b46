// Package points — service.go содержит бизнес-логику баланса.
// Все изменения баланса проходят через ApplyInTx: блокировка строки,
// расчёт по политике нижней границы, обновление и запись аудита
// в одной транзакции.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/config"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Service управляет балансами и журналом аудита.
type Service struct {
	exec     *postgres.Executor
	repo     *Repository
	floor    string
	maxDelta int
}

// NewService создаёт сервис баллов.
// floor — одна из политик config.FloorClamp / FloorReject / FloorAllow.
func NewService(exec *postgres.Executor, repo *Repository, floor string, maxDelta int) *Service {
	if floor == "" {
		floor = config.FloorClamp
	}
	return &Service{exec: exec, repo: repo, floor: floor, maxDelta: maxDelta}
}

// validate проверяет изменение до обращения к БД.
// Нулевое изменение допустимо только для движков (см. ApplyInTx).
func (s *Service) validate(c Change) error {
	if err := common.ValidateKey(c.UserID, c.TenantID); err != nil {
		return err
	}
	if err := common.ValidateID("actor_id", c.ActorID); err != nil {
		return err
	}
	if err := common.ValidateReason(c.Reason); err != nil {
		return err
	}
	if !knownOps[c.Operation] {
		return fmt.Errorf("%w: операция %q", common.ErrInvalidInput, c.Operation)
	}
	if c.Delta > s.maxDelta || c.Delta < -s.maxDelta {
		return fmt.Errorf("%w: |%d| > %d", common.ErrInvalidAmount, c.Delta, s.maxDelta)
	}
	return nil
}

// ApplyDelta — ручное изменение баланса одной транзакцией.
//
// Пример:
//
//	res, err := svc.ApplyDelta(ctx, points.Change{
//	    UserID: "123", TenantID: "456", Delta: -50,
//	    ActorID: "789", Reason: "спам", Operation: points.OpAdminAdjust,
//	})
func (s *Service) ApplyDelta(ctx context.Context, c Change) (*Result, error) {
	if c.Delta == 0 {
		return nil, fmt.Errorf("%w: изменение не может быть нулевым", common.ErrInvalidAmount)
	}
	if err := s.validate(c); err != nil {
		return nil, err
	}

	var res *Result
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "points.apply_delta",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			r, err := s.ApplyInTx(ctx, tx, c, 0)
			res = r
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   c.UserID,
		"server_id": c.TenantID,
		"actor_id":  c.ActorID,
		"delta":     c.Delta,
		"before":    res.PointsBefore,
		"after":     res.PointsAfter,
		"audit_id":  res.AuditID,
	}).Info("Баланс изменён вручную")
	return res, nil
}

// ApplyInTx применяет изменение внутри транзакции вызывающего.
// checkins увеличивает total_checkins (1 для ежедневной отметки, иначе 0).
func (s *Service) ApplyInTx(ctx context.Context, q postgres.DBTX, c Change, checkins int) (*Result, error) {
	if err := s.validate(c); err != nil {
		return nil, err
	}

	if err := s.repo.EnsureRow(ctx, q, c.UserID, c.TenantID); err != nil {
		return nil, err
	}
	before, err := s.repo.LockPoints(ctx, q, c.UserID, c.TenantID)
	if err != nil {
		return nil, err
	}

	after, clamped, err := ApplyFloor(s.floor, before, c.Delta)
	if err != nil {
		return nil, err
	}
	if err := checkArithmetic(before, c.Delta, after, clamped); err != nil {
		return nil, err
	}

	if err := s.repo.SetPoints(ctx, q, c.UserID, c.TenantID, after, checkins); err != nil {
		return nil, err
	}

	id, err := s.repo.InsertAudit(ctx, q, &AuditEntry{
		OperationType: c.Operation,
		ActorID:       c.ActorID,
		TargetUserID:  c.UserID,
		TenantID:      c.TenantID,
		PointsChange:  c.Delta,
		PointsBefore:  before,
		PointsAfter:   after,
		Clamped:       clamped,
		Reason:        c.Reason,
	})
	if err != nil {
		return nil, err
	}

	if clamped {
		log.WithFields(log.Fields{
			"user_id":   c.UserID,
			"server_id": c.TenantID,
			"delta":     c.Delta,
			"before":    before,
		}).Warn("Списание обрезано до нуля")
	}

	return &Result{
		PointsBefore: before,
		PointsAfter:  after,
		PointsChange: c.Delta,
		Clamped:      clamped,
		AuditID:      id,
	}, nil
}

// LockBalance блокирует строку баланса до конца транзакции, создавая её при необходимости.
// Позволяет сериализовать несколько начислений одного пользователя в одной единице работы.
func (s *Service) LockBalance(ctx context.Context, q postgres.DBTX, userID, tenantID string) (int, error) {
	if err := s.repo.EnsureRow(ctx, q, userID, tenantID); err != nil {
		return 0, err
	}
	return s.repo.LockPoints(ctx, q, userID, tenantID)
}

// HasOperation сообщает, начислялось ли пользователю что-то с типом op.
// Вызывается под LockBalance, чтобы проверка и начисление не разошлись.
func (s *Service) HasOperation(ctx context.Context, q postgres.DBTX, userID, tenantID, op string) (bool, error) {
	return s.repo.HasOperation(ctx, q, userID, tenantID, op)
}

// ApplyFloor считает новый баланс по политике нижней границы.
func ApplyFloor(policy string, before, delta int) (after int, clamped bool, err error) {
	after = before + delta
	if after >= 0 {
		return after, false, nil
	}
	switch policy {
	case config.FloorAllow:
		return after, false, nil
	case config.FloorReject:
		return before, false, fmt.Errorf("%w: баланс %d, списание %d", common.ErrInsufficientPoints, before, -delta)
	default:
		return 0, true, nil
	}
}

// checkArithmetic сверяет итог перед записью аудита.
func checkArithmetic(before, delta, after int, clamped bool) error {
	if clamped {
		if after == 0 && before+delta < 0 {
			return nil
		}
	} else if after == before+delta {
		return nil
	}
	return fmt.Errorf("%w: %d + %d != %d (clamped=%t)",
		common.ErrInvariantViolation, before, delta, after, clamped)
}

// GetBalance возвращает баланс. Отсутствующий баланс — это ноль.
func (s *Service) GetBalance(ctx context.Context, userID, tenantID string) (*Balance, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	var b *Balance
	err := s.exec.Read(ctx, "points.get_balance", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		b, err = s.repo.GetBalance(ctx, q, userID, tenantID)
		if errors.Is(err, pgx.ErrNoRows) {
			b = &Balance{UserID: userID, TenantID: tenantID}
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return b, nil
}

// Leaderboard возвращает рейтинг сервера.
func (s *Service) Leaderboard(ctx context.Context, tenantID string, limit int) ([]*Balance, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, 10)

	var result []*Balance
	err := s.exec.Read(ctx, "points.leaderboard", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		result, err = s.repo.Leaderboard(ctx, q, tenantID, limit)
		return err
	})
	return result, err
}

// AuditLog возвращает журнал сервера с фильтрами по инициатору и получателю.
func (s *Service) AuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	if err := common.ValidateID("server_id", f.TenantID); err != nil {
		return nil, err
	}
	if f.ActorID != "" {
		if err := common.ValidateID("actor_id", f.ActorID); err != nil {
			return nil, err
		}
	}
	if f.TargetID != "" {
		if err := common.ValidateID("target_user_id", f.TargetID); err != nil {
			return nil, err
		}
	}
	f.Limit = clampLimit(f.Limit, 20)

	var result []*AuditEntry
	err := s.exec.Read(ctx, "points.audit_log", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		result, err = s.repo.AuditLog(ctx, q, f)
		return err
	})
	return result, err
}

// clampLimit ограничивает размер выборки: def по умолчанию, не больше 100.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}
