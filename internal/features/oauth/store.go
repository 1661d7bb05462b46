// Package oauth — store.go реализует операции хранилища.
//
// Срок жизни проверяется при чтении: просроченная, но ещё не удалённая
// фоновой очисткой строка всё равно отклоняется. Consume удаляет строку
// тем же запросом, который её возвращает, поэтому повторный вызов
// с тем же state никогда не отдаст code_verifier второй раз.
package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

const maxTokenLen = 128

// Store — хранилище рукопожатий.
type Store struct {
	exec *postgres.Executor
	repo *Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore создаёт хранилище с заданным TTL.
func NewStore(exec *postgres.Executor, repo *Repository, ttl time.Duration) *Store {
	return &Store{exec: exec, repo: repo, ttl: ttl, now: time.Now}
}

// Create сохраняет рукопожатие со сроком now+TTL.
func (s *Store) Create(ctx context.Context, state, verifier, userID string) (*Handshake, error) {
	if state == "" || len(state) > maxTokenLen {
		return nil, fmt.Errorf("%w: state", common.ErrInvalidID)
	}
	if len(verifier) < 43 || len(verifier) > maxTokenLen {
		return nil, fmt.Errorf("%w: code_verifier должен быть от 43 до 128 символов", common.ErrInvalidInput)
	}
	if err := common.ValidateID("user_id", userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	h := &Handshake{
		State:        state,
		CodeVerifier: verifier,
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	outcome, err := s.exec.Execute(ctx, postgres.Unit{
		Name:            "oauth.create",
		IdempotencyKeys: []string{ConstraintState},
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			return s.repo.Insert(ctx, tx, h)
		},
	})
	if err != nil {
		return nil, err
	}
	if outcome == postgres.Conflicted {
		return nil, common.ErrDuplicateState
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"expires_at": h.ExpiresAt,
	}).Debug("Рукопожатие OAuth сохранено")
	return h, nil
}

// Consume забирает code_verifier по state. Строка удаляется при любом исходе.
func (s *Store) Consume(ctx context.Context, state string) (*ConsumeResult, error) {
	if state == "" || len(state) > maxTokenLen {
		return &ConsumeResult{Status: NotFound}, nil
	}

	var h *Handshake
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "oauth.consume",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			h, err = s.repo.Take(ctx, tx, state)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	if h == nil {
		return &ConsumeResult{Status: NotFound}, nil
	}
	if !s.now().UTC().Before(h.ExpiresAt) {
		log.WithField("user_id", h.UserID).Debug("Рукопожатие OAuth просрочено")
		return &ConsumeResult{Status: Expired, UserID: h.UserID}, nil
	}
	return &ConsumeResult{Status: Consumed, CodeVerifier: h.CodeVerifier, UserID: h.UserID}, nil
}

// Sweep удаляет просроченные рукопожатия.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	var deleted int64
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "oauth.sweep",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			deleted, err = s.repo.DeleteExpired(ctx, tx, s.now().UTC())
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.WithField("deleted", deleted).Info("Просроченные рукопожатия OAuth удалены")
	}
	return deleted, nil
}
