package moderation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Service управляет предупреждениями.
type Service struct {
	exec *postgres.Executor
	repo *Repository
}

// NewService создаёт сервис предупреждений.
func NewService(exec *postgres.Executor, repo *Repository) *Service {
	return &Service{exec: exec, repo: repo}
}

// AddWarning выдаёт предупреждение и возвращает его с ID.
func (s *Service) AddWarning(ctx context.Context, userID, tenantID, moderatorID, reason string) (*Warning, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	if err := common.ValidateID("moderator_id", moderatorID); err != nil {
		return nil, err
	}
	if err := common.ValidateReason(reason); err != nil {
		return nil, err
	}

	w := &Warning{UserID: userID, TenantID: tenantID, ModeratorID: moderatorID, Reason: reason}
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "moderation.add_warning",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			id, err := s.repo.Insert(ctx, tx, w)
			w.ID = id
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"warn_id":      w.ID,
		"user_id":      userID,
		"server_id":    tenantID,
		"moderator_id": moderatorID,
	}).Info("Выдано предупреждение")
	return w, nil
}

// RemoveWarning снимает предупреждение. ErrWarningNotFound, если его нет на этом сервере.
func (s *Service) RemoveWarning(ctx context.Context, tenantID string, id int64) error {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: warn_id=%d", common.ErrInvalidID, id)
	}

	var deleted bool
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "moderation.remove_warning",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			deleted, err = s.repo.Delete(ctx, tx, tenantID, id)
			return err
		},
	})
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: #%d", common.ErrWarningNotFound, id)
	}
	return nil
}

// Warnings возвращает предупреждения пользователя.
func (s *Service) Warnings(ctx context.Context, userID, tenantID string) ([]*Warning, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	var result []*Warning
	err := s.exec.Read(ctx, "moderation.warnings", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		result, err = s.repo.List(ctx, q, userID, tenantID)
		return err
	})
	return result, err
}

// WarningCount считает предупреждения пользователя.
func (s *Service) WarningCount(ctx context.Context, userID, tenantID string) (int, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return 0, err
	}
	var count int
	err := s.exec.Read(ctx, "moderation.warning_count", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		count, err = s.repo.Count(ctx, q, userID, tenantID)
		return err
	})
	return count, err
}
