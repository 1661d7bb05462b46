// Package points — reconcile.go сверяет балансы с журналом аудита.
// Журнал проигрывается по порядку ID: каждая запись должна начинаться
// там, где закончилась предыдущая, а последняя — совпадать с балансом.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Reconcile сверяет один баланс с его историей.
// Баланс и журнал читаются из одного снимка базы.
func (s *Service) Reconcile(ctx context.Context, userID, tenantID string) (*Reconciliation, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}

	var rec *Reconciliation
	err := s.exec.Snapshot(ctx, "points.reconcile", func(ctx context.Context, q postgres.DBTX) error {
		balance := 0
		b, err := s.repo.GetBalance(ctx, q, userID, tenantID)
		switch {
		case err == nil:
			balance = b.Points
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("ошибка получения баланса: %w", err)
		}

		trail, err := s.repo.AuditTrail(ctx, q, userID, tenantID)
		if err != nil {
			return err
		}
		rec = Replay(userID, tenantID, balance, trail)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ReconcileAll сверяет все балансы и возвращает только расходящиеся.
func (s *Service) ReconcileAll(ctx context.Context) ([]*Reconciliation, error) {
	var accounts []Account
	err := s.exec.Read(ctx, "points.accounts", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		accounts, err = s.repo.Accounts(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	var bad []*Reconciliation
	clamped := 0
	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return bad, err
		}
		rec, err := s.Reconcile(ctx, a.UserID, a.TenantID)
		if err != nil {
			return bad, fmt.Errorf("сверка %s/%s: %w", a.TenantID, a.UserID, err)
		}
		clamped += len(rec.Clamped)
		if !rec.Consistent() {
			log.WithFields(log.Fields{
				"user_id":      rec.UserID,
				"server_id":    rec.TenantID,
				"balance":      rec.Balance,
				"replayed_to":  rec.ReplayedTo,
				"chain_breaks": len(rec.ChainBreaks),
				"bad_math":     len(rec.BadMath),
			}).Error("Баланс не сходится с журналом аудита")
			bad = append(bad, rec)
		}
	}

	log.WithFields(log.Fields{
		"accounts":     len(accounts),
		"inconsistent": len(bad),
		"clamped":      clamped,
	}).Info("Сверка балансов завершена")
	return bad, nil
}

// Replay проигрывает журнал от нулевого баланса.
func Replay(userID, tenantID string, balance int, trail []*AuditEntry) *Reconciliation {
	rec := &Reconciliation{
		UserID:   userID,
		TenantID: tenantID,
		Balance:  balance,
		Entries:  len(trail),
	}

	running := 0
	for _, e := range trail {
		if e.PointsBefore != running {
			rec.ChainBreaks = append(rec.ChainBreaks, ChainBreak{
				AuditID:        e.ID,
				ExpectedBefore: running,
				ActualBefore:   e.PointsBefore,
			})
		}
		if e.Clamped {
			rec.Clamped = append(rec.Clamped, e.ID)
		} else if e.PointsAfter != e.PointsBefore+e.PointsChange {
			rec.BadMath = append(rec.BadMath, e.ID)
		}
		running = e.PointsAfter
	}

	rec.ReplayedTo = running
	rec.Drift = balance - running
	return rec
}
