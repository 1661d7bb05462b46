// Package social — service.go содержит логику подтверждений и привязок.
//
// Каждое действие засчитывается один раз: ключ идемпотентности —
// UNIQUE (пользователь, сервер, пост, действие). Тройной бонус выдаётся
// в той же единице работы, что и третье действие; строка баланса
// блокируется первой, поэтому параллельные подтверждения одного
// пользователя идут строго по очереди и бонус не теряется и не дублируется.
package social

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

// Ledger — операции с балансом, нужные модулю.
type Ledger interface {
	ApplyInTx(ctx context.Context, q postgres.DBTX, c points.Change, checkins int) (*points.Result, error)
	LockBalance(ctx context.Context, q postgres.DBTX, userID, tenantID string) (int, error)
	HasOperation(ctx context.Context, q postgres.DBTX, userID, tenantID, op string) (bool, error)
}

// SettingsSource отдаёт настройки сервера.
type SettingsSource interface {
	Settings(ctx context.Context, tenantID string) (*tenantcfg.Settings, error)
}

// Service — трекер действий в соцсети.
type Service struct {
	exec         *postgres.Executor
	repo         *Repository
	ledger       Ledger
	settings     SettingsSource
	sealer       *Sealer
	bindingBonus int
}

// NewService создаёт сервис. bindingBonus — баллы за первую привязку аккаунта.
func NewService(exec *postgres.Executor, repo *Repository, ledger Ledger, settings SettingsSource,
	sealer *Sealer, bindingBonus int) *Service {
	return &Service{
		exec:         exec,
		repo:         repo,
		ledger:       ledger,
		settings:     settings,
		sealer:       sealer,
		bindingBonus: bindingBonus,
	}
}

// RecordVerification засчитывает подтверждённое действие с постом.
func (s *Service) RecordVerification(ctx context.Context, v Verification) (*VerificationResult, error) {
	if err := common.ValidateKey(v.UserID, v.TenantID); err != nil {
		return nil, err
	}
	if err := common.ValidateID("post_id", v.PostID); err != nil {
		return nil, err
	}
	if _, ok := ParseAction(string(v.Action)); !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownAction, v.Action)
	}
	if v.ExternalID != "" {
		if err := common.ValidateID("external_id", v.ExternalID); err != nil {
			return nil, err
		}
	}

	res := &VerificationResult{}
	outcome, err := s.exec.Execute(ctx, postgres.Unit{
		Name:            "social.record_verification",
		IdempotencyKeys: []string{ConstraintAction},
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			*res = VerificationResult{}

			post, err := s.activePost(ctx, tx, v.TenantID, v.PostID)
			if err != nil {
				return err
			}
			binding, err := s.binding(ctx, tx, v.UserID, v.TenantID)
			if err != nil {
				return err
			}
			if !binding.Verified {
				return fmt.Errorf("%w: привязка не подтверждена", common.ErrBindingNotFound)
			}
			if v.ExternalID != "" && v.ExternalID != binding.ExternalID {
				return fmt.Errorf("%w: %s != %s", common.ErrBindingMismatch, v.ExternalID, binding.ExternalID)
			}

			// Строка баланса — замок на все начисления пользователя в этой единице
			if _, err := s.ledger.LockBalance(ctx, tx, v.UserID, v.TenantID); err != nil {
				return err
			}

			earned := post.PointsFor(v.Action)
			if err := s.repo.InsertVerification(ctx, tx, v.UserID, v.TenantID, binding.Username, v.PostID, v.Action, earned); err != nil {
				return err
			}
			if earned > 0 {
				if _, err := s.ledger.ApplyInTx(ctx, tx, points.Change{
					UserID:    v.UserID,
					TenantID:  v.TenantID,
					Delta:     earned,
					ActorID:   points.SystemActor,
					Reason:    fmt.Sprintf("%s поста %s", v.Action, v.PostID),
					Operation: points.OpSocial,
				}, 0); err != nil {
					return err
				}
			}
			res.PointsEarned = earned

			count, err := s.repo.CountDistinctActions(ctx, tx, v.UserID, v.TenantID, v.PostID)
			if err != nil {
				return err
			}
			if count != len(Actions) {
				return nil
			}

			bonus := post.TripleBonusPoints
			inserted, err := s.repo.InsertTripleIfAbsent(ctx, tx, v.UserID, v.TenantID, binding.Username, v.PostID, bonus)
			if err != nil {
				return err
			}
			if !inserted || bonus <= 0 {
				return nil
			}
			if _, err := s.ledger.ApplyInTx(ctx, tx, points.Change{
				UserID:    v.UserID,
				TenantID:  v.TenantID,
				Delta:     bonus,
				ActorID:   points.SystemActor,
				Reason:    fmt.Sprintf("все три действия с постом %s", v.PostID),
				Operation: points.OpSocialTriple,
			}, 0); err != nil {
				return err
			}
			res.TripleBonus = bonus
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if outcome == postgres.Conflicted {
		log.WithFields(log.Fields{
			"user_id":   v.UserID,
			"server_id": v.TenantID,
			"post_id":   v.PostID,
			"action":    v.Action,
		}).Debug("Действие уже засчитано")
		return &VerificationResult{Status: AlreadyRecorded}, nil
	}

	log.WithFields(log.Fields{
		"user_id":      v.UserID,
		"server_id":    v.TenantID,
		"post_id":      v.PostID,
		"action":       v.Action,
		"points":       res.PointsEarned,
		"triple_bonus": res.TripleBonus,
	}).Info("Действие в соцсети засчитано")
	return res, nil
}

// activePost ищет пост сервера, затем глобальный. Выключенный пост не подходит.
func (s *Service) activePost(ctx context.Context, q postgres.DBTX, tenantID, postID string) (*TargetPost, error) {
	posts, err := s.repo.TargetPosts(ctx, q, scope(tenantID), postID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 || !posts[0].Active {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownPost, postID)
	}
	return posts[0], nil
}

// binding ищет привязку на сервере, затем глобальную.
func (s *Service) binding(ctx context.Context, q postgres.DBTX, userID, tenantID string) (*sealedBinding, error) {
	found, err := s.repo.GetBindings(ctx, q, userID, tenantID, common.GlobalTenant)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, common.ErrBindingNotFound
	}
	return found[0], nil
}

// Bind сохраняет привязку. За первую подтверждённую привязку на сервере начисляется бонус,
// и только один раз за всю историю баланса.
func (s *Service) Bind(ctx context.Context, b Binding) (*BindResult, error) {
	if err := common.ValidateKey(b.UserID, b.TenantID); err != nil {
		return nil, err
	}
	if err := common.ValidateID("external_id", b.ExternalID); err != nil {
		return nil, err
	}
	if b.Username == "" || len(b.Username) > 64 {
		return nil, fmt.Errorf("%w: username=%q", common.ErrInvalidID, b.Username)
	}

	row := &sealedBinding{Binding: b}
	if b.Tokens != nil {
		var err error
		if row.AccessToken, err = s.sealer.Seal(b.Tokens.AccessToken, b.ExternalID); err != nil {
			return nil, err
		}
		if row.RefreshToken, err = s.sealer.Seal(b.Tokens.RefreshToken, b.ExternalID); err != nil {
			return nil, err
		}
		if !b.Tokens.ExpiresAt.IsZero() {
			exp := b.Tokens.ExpiresAt.UTC()
			row.TokenExpiresAt = &exp
		}
	}

	res := &BindResult{}
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "social.bind",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			*res = BindResult{}

			inserted, err := s.repo.UpsertBinding(ctx, tx, row)
			if err != nil {
				return err
			}
			res.FirstBind = inserted
			if !b.Verified || s.bindingBonus <= 0 {
				return nil
			}

			if _, err := s.ledger.LockBalance(ctx, tx, b.UserID, b.TenantID); err != nil {
				return err
			}
			had, err := s.ledger.HasOperation(ctx, tx, b.UserID, b.TenantID, points.OpBindingBonus)
			if err != nil || had {
				return err
			}
			if _, err := s.ledger.ApplyInTx(ctx, tx, points.Change{
				UserID:    b.UserID,
				TenantID:  b.TenantID,
				Delta:     s.bindingBonus,
				ActorID:   points.SystemActor,
				Reason:    "привязка аккаунта @" + b.Username,
				Operation: points.OpBindingBonus,
			}, 0); err != nil {
				return err
			}
			res.BonusAwarded = s.bindingBonus
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":     b.UserID,
		"server_id":   b.TenantID,
		"external_id": b.ExternalID,
		"first_bind":  res.FirstBind,
		"bonus":       res.BonusAwarded,
	}).Info("Аккаунт соцсети привязан")
	return res, nil
}

// Binding возвращает привязку (сервер, затем global) с расшифрованными токенами.
func (s *Service) Binding(ctx context.Context, userID, tenantID string) (*Binding, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	var row *sealedBinding
	err := s.exec.Read(ctx, "social.binding", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		row, err = s.binding(ctx, q, userID, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.open(row)
}

func (s *Service) open(row *sealedBinding) (*Binding, error) {
	b := row.Binding
	if row.AccessToken == nil && row.RefreshToken == nil {
		return &b, nil
	}
	access, err := s.sealer.Open(row.AccessToken, row.ExternalID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sealer.Open(row.RefreshToken, row.ExternalID)
	if err != nil {
		return nil, err
	}
	b.Tokens = &Tokens{AccessToken: access, RefreshToken: refresh}
	if row.TokenExpiresAt != nil {
		b.Tokens.ExpiresAt = *row.TokenExpiresAt
	}
	return &b, nil
}

// UpdateTokens заменяет токены всех привязок внешнего аккаунта (после refresh).
func (s *Service) UpdateTokens(ctx context.Context, externalID string, t Tokens) (int64, error) {
	if err := common.ValidateID("external_id", externalID); err != nil {
		return 0, err
	}
	access, err := s.sealer.Seal(t.AccessToken, externalID)
	if err != nil {
		return 0, err
	}
	refresh, err := s.sealer.Seal(t.RefreshToken, externalID)
	if err != nil {
		return 0, err
	}
	var expiresAt *time.Time
	if !t.ExpiresAt.IsZero() {
		exp := t.ExpiresAt.UTC()
		expiresAt = &exp
	}

	var updated int64
	_, err = s.exec.Execute(ctx, postgres.Unit{
		Name: "social.update_tokens",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			updated, err = s.repo.UpdateTokens(ctx, tx, externalID, access, refresh, expiresAt)
			return err
		},
	})
	return updated, err
}

// Unbind удаляет привязку на сервере.
func (s *Service) Unbind(ctx context.Context, userID, tenantID string) (bool, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return false, err
	}
	var deleted bool
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "social.unbind",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			deleted, err = s.repo.DeleteBinding(ctx, tx, userID, tenantID)
			return err
		},
	})
	return deleted, err
}

// DefaultTargetPost возвращает пост с баллами по умолчанию из настроек сервера.
func (s *Service) DefaultTargetPost(ctx context.Context, tenantID, postID string) (*TargetPost, error) {
	settings, err := s.settings.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &TargetPost{
		TenantID:          tenantID,
		PostID:            postID,
		LikePoints:        settings.SocialLikePoints,
		RetweetPoints:     settings.SocialRetweetPoints,
		ReplyPoints:       settings.SocialReplyPoints,
		TripleBonusPoints: settings.SocialTripleBonus,
		Active:            true,
	}, nil
}

// UpsertTargetPost добавляет или обновляет целевой пост.
func (s *Service) UpsertTargetPost(ctx context.Context, p *TargetPost) error {
	if err := common.ValidateID("server_id", p.TenantID); err != nil {
		return err
	}
	if err := common.ValidateID("post_id", p.PostID); err != nil {
		return err
	}
	for _, n := range []int{p.LikePoints, p.RetweetPoints, p.ReplyPoints, p.TripleBonusPoints} {
		if n < 0 {
			return fmt.Errorf("%w: баллы поста не могут быть отрицательными", common.ErrInvalidAmount)
		}
	}

	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "social.upsert_target_post",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			return s.repo.UpsertTargetPost(ctx, tx, p)
		},
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"server_id": p.TenantID,
		"post_id":   p.PostID,
	}).Info("Целевой пост сохранён")
	return nil
}

// DeactivateTargetPost выключает пост; уже засчитанные действия остаются.
func (s *Service) DeactivateTargetPost(ctx context.Context, tenantID, postID string) (bool, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return false, err
	}
	var changed bool
	_, err := s.exec.Execute(ctx, postgres.Unit{
		Name: "social.deactivate_target_post",
		Fn: func(ctx context.Context, tx pgx.Tx) error {
			var err error
			changed, err = s.repo.DeactivateTargetPost(ctx, tx, tenantID, postID)
			return err
		},
	})
	return changed, err
}

// TargetPosts возвращает активные посты сервера вместе с глобальными.
// Пост сервера перекрывает глобальный с тем же ID, в том числе выключенный.
func (s *Service) TargetPosts(ctx context.Context, tenantID string) ([]*TargetPost, error) {
	if err := common.ValidateID("server_id", tenantID); err != nil {
		return nil, err
	}
	var all []*TargetPost
	err := s.exec.Read(ctx, "social.target_posts", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		all, err = s.repo.TargetPosts(ctx, q, scope(tenantID), "")
		return err
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(all))
	var result []*TargetPost
	for _, p := range all {
		if seen[p.PostID] {
			continue
		}
		seen[p.PostID] = true
		if p.Active {
			result = append(result, p)
		}
	}
	return result, nil
}

// Verifications возвращает засчитанные действия пользователя.
func (s *Service) Verifications(ctx context.Context, userID, tenantID string) ([]*VerificationRecord, error) {
	if err := common.ValidateKey(userID, tenantID); err != nil {
		return nil, err
	}
	var result []*VerificationRecord
	err := s.exec.Read(ctx, "social.verifications", func(ctx context.Context, q postgres.DBTX) error {
		var err error
		result, err = s.repo.Verifications(ctx, q, userID, tenantID)
		return err
	})
	return result, err
}

// scope — сервер и global, в порядке приоритета.
func scope(tenantID string) []string {
	if tenantID == common.GlobalTenant {
		return []string{common.GlobalTenant}
	}
	return []string{tenantID, common.GlobalTenant}
}

