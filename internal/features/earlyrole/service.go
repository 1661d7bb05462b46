package earlyrole

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Service управляет реестром ранней роли.
type Service struct {
	exec *postgres.Executor
	repo *Repository
}

// NewService создаёт сервис.
func NewService(exec *postgres.Executor, repo *Repository) *Service {
	return &Service{exec: exec, repo: repo}
}

// Register вносит пользователя в реестр. Повторная регистрация безопасна:
// пустой wallet не затирает ранее сохранённый адрес.
func (s *Service) Register(ctx context.Context, userID, tenantID, wallet string) (*Member, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	var addr *string
	if wallet != "" {
		if err := ValidateWallet(wallet); err != nil {
			return nil, err
		}
		addr = &wallet
	}

	var m *Member
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "earlyrole.register",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			m, err = s.repo.Upsert(ctx, tx, userID, tenantID, addr)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"server_id":  tenantID,
		"has_wallet": m.WalletAddress != nil,
	}).Info("Участник ранней роли записан")
	return m, nil
}

// Member возвращает участника или ErrMemberNotFound.
func (s *Service) Member(ctx context.Context, userID, tenantID string) (*Member, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	var m *Member
	err := s.exec.Read(ctx, "earlyrole.member", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		m, err = s.repo.Get(ctx, q, userID, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: user_id=%s server_id=%s", common.ErrMemberNotFound, userID, tenantID)
	}
	return m, nil
}

// SetWallet меняет кошелёк уже зарегистрированного участника.
// Пустой tenantID обновляет адрес на всех серверах пользователя.
// Возвращает число обновлённых записей; ноль — ErrMemberNotFound.
func (s *Service) SetWallet(ctx context.Context, userID, tenantID, wallet string) (int64, error) {
	if err := common.ValidateID("user_id", userID); err != nil {
		return 0, err
	}
	if tenantID != "" {
		if err := common.ValidateID("server_id", tenantID); err != nil {
			return 0, err
		}
	}
	if err := ValidateWallet(wallet); err != nil {
		return 0, err
	}

	var updated int64
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "earlyrole.set_wallet",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			updated, err = s.repo.UpdateWallet(ctx, tx, userID, tenantID, wallet)
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		return 0, fmt.Errorf("%w: user_id=%s", common.ErrMemberNotFound, userID)
	}
	return updated, nil
}

// ValidateWallet проверяет адрес: непустой, без пробелов, не длиннее колонки.
func ValidateWallet(wallet string) error {
	if strings.TrimSpace(wallet) == "" || len(wallet) > MaxWalletLen ||
		strings.IndexFunc(wallet, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q", common.ErrInvalidWallet, wallet)
	}
	return nil
}
