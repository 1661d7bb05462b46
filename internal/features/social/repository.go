// Package social — repository.go выполняет запросы к таблицам
// twitter_bindings, twitter_target_tweets и twitter_verifications.
package social

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/rewards-ledger/internal/db/postgres"
)

// Repository — запросы модуля соцсетей.
type Repository struct{}

// NewRepository создаёт репозиторий.
func NewRepository() *Repository {
	return &Repository{}
}

// sealedBinding — строка привязки с зашифрованными токенами.
type sealedBinding struct {
	Binding
	AccessToken    []byte
	RefreshToken   []byte
	TokenExpiresAt *time.Time
}

// UpsertBinding создаёт или обновляет привязку.
// inserted=true, если строка создана (xmax = 0 у новой версии строки).
func (r *Repository) UpsertBinding(ctx context.Context, q postgres.DBTX, b *sealedBinding) (inserted bool, err error) {
	err = q.QueryRow(ctx, `
		INSERT INTO twitter_bindings
			(user_id, server_id, twitter_user_id, twitter_username,
			 access_token, refresh_token, token_expires_at, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, server_id) DO UPDATE SET
			twitter_user_id = EXCLUDED.twitter_user_id,
			twitter_username = EXCLUDED.twitter_username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			verified = EXCLUDED.verified,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`, b.UserID, b.TenantID, b.ExternalID, b.Username,
		b.AccessToken, b.RefreshToken, b.TokenExpiresAt, b.Verified,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения привязки: %w", err)
	}
	return inserted, nil
}

// GetBindings возвращает привязки пользователя на сервере и на global
// (не больше двух строк, серверная первой).
func (r *Repository) GetBindings(ctx context.Context, q postgres.DBTX, userID, tenantID, fallback string) ([]*sealedBinding, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, server_id, twitter_user_id, twitter_username, verified,
		       access_token, refresh_token, token_expires_at, created_at, updated_at
		FROM twitter_bindings
		WHERE user_id = $1 AND server_id IN ($2, $3)
		ORDER BY (server_id = $2) DESC
	`, userID, tenantID, fallback)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения привязки: %w", err)
	}
	defer rows.Close()

	var result []*sealedBinding
	for rows.Next() {
		var b sealedBinding
		err := rows.Scan(&b.UserID, &b.TenantID, &b.ExternalID, &b.Username, &b.Verified,
			&b.AccessToken, &b.RefreshToken, &b.TokenExpiresAt, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования привязки: %w", err)
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

// UpdateTokens заменяет токены во всех привязках внешнего аккаунта.
func (r *Repository) UpdateTokens(ctx context.Context, q postgres.DBTX, externalID string, access, refresh []byte, expiresAt *time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE twitter_bindings
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = NOW()
		WHERE twitter_user_id = $1
	`, externalID, access, refresh, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления токенов: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBinding удаляет привязку.
func (r *Repository) DeleteBinding(ctx context.Context, q postgres.DBTX, userID, tenantID string) (bool, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM twitter_bindings WHERE user_id = $1 AND server_id = $2
	`, userID, tenantID)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления привязки: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertTargetPost добавляет или обновляет пост и снова делает его активным.
func (r *Repository) UpsertTargetPost(ctx context.Context, q postgres.DBTX, p *TargetPost) error {
	_, err := q.Exec(ctx, `
		INSERT INTO twitter_target_tweets
			(server_id, tweet_id, tweet_url, description,
			 like_points, retweet_points, reply_points, triple_bonus_points, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		ON CONFLICT (server_id, tweet_id) DO UPDATE SET
			tweet_url = EXCLUDED.tweet_url,
			description = EXCLUDED.description,
			like_points = EXCLUDED.like_points,
			retweet_points = EXCLUDED.retweet_points,
			reply_points = EXCLUDED.reply_points,
			triple_bonus_points = EXCLUDED.triple_bonus_points,
			is_active = TRUE,
			updated_at = NOW()
	`, p.TenantID, p.PostID, p.URL, p.Description,
		p.LikePoints, p.RetweetPoints, p.ReplyPoints, p.TripleBonusPoints)
	if err != nil {
		return fmt.Errorf("ошибка сохранения поста: %w", err)
	}
	return nil
}

// DeactivateTargetPost выключает пост.
func (r *Repository) DeactivateTargetPost(ctx context.Context, q postgres.DBTX, tenantID, postID string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE twitter_target_tweets
		SET is_active = FALSE, updated_at = NOW()
		WHERE server_id = $1 AND tweet_id = $2 AND is_active
	`, tenantID, postID)
	if err != nil {
		return false, fmt.Errorf("ошибка выключения поста: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const postColumns = `server_id, tweet_id, tweet_url, description,
	like_points, retweet_points, reply_points, triple_bonus_points, is_active, created_at`

// TargetPosts возвращает посты серверов из списка. onlyPostID сужает выборку до одного поста.
func (r *Repository) TargetPosts(ctx context.Context, q postgres.DBTX, tenantIDs []string, onlyPostID string) ([]*TargetPost, error) {
	rows, err := q.Query(ctx, `
		SELECT `+postColumns+`
		FROM twitter_target_tweets
		WHERE server_id = ANY($1) AND ($2 = '' OR tweet_id = $2)
		ORDER BY array_position($1, server_id), created_at DESC
	`, tenantIDs, onlyPostID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения постов: %w", err)
	}
	defer rows.Close()

	var result []*TargetPost
	for rows.Next() {
		var p TargetPost
		err := rows.Scan(&p.TenantID, &p.PostID, &p.URL, &p.Description,
			&p.LikePoints, &p.RetweetPoints, &p.ReplyPoints, &p.TripleBonusPoints, &p.Active, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования поста: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// InsertVerification записывает действие. Повтор нарушает ConstraintAction.
func (r *Repository) InsertVerification(ctx context.Context, q postgres.DBTX, userID, tenantID, username, postID string, action Action, points int) error {
	_, err := q.Exec(ctx, `
		INSERT INTO twitter_verifications
			(user_id, server_id, twitter_username, tweet_id, action_type, points_earned)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID, tenantID, username, postID, string(action), points)
	if err != nil {
		return fmt.Errorf("ошибка записи подтверждения: %w", err)
	}
	return nil
}

// InsertTripleIfAbsent записывает отметку «все три действия».
// Возвращает false, если она уже была.
func (r *Repository) InsertTripleIfAbsent(ctx context.Context, q postgres.DBTX, userID, tenantID, username, postID string, bonus int) (bool, error) {
	rows, err := q.Query(ctx, `
		INSERT INTO twitter_verifications
			(user_id, server_id, twitter_username, tweet_id, action_type, points_earned)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT twitter_verifications_unique_action DO NOTHING
		RETURNING id
	`, userID, tenantID, username, postID, string(actionTriple), bonus)
	if err != nil {
		return false, fmt.Errorf("ошибка записи тройного бонуса: %w", err)
	}
	defer rows.Close()

	inserted := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("ошибка записи тройного бонуса: %w", err)
	}
	return inserted, nil
}

// CountDistinctActions считает разные действия пользователя с постом.
func (r *Repository) CountDistinctActions(ctx context.Context, q postgres.DBTX, userID, tenantID, postID string) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(DISTINCT action_type) FROM twitter_verifications
		WHERE user_id = $1 AND server_id = $2 AND tweet_id = $3
		  AND action_type IN ('like', 'retweet', 'reply')
	`, userID, tenantID, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта действий: %w", err)
	}
	return count, nil
}

// Verifications возвращает действия пользователя, свежие первыми.
func (r *Repository) Verifications(ctx context.Context, q postgres.DBTX, userID, tenantID string) ([]*VerificationRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT tweet_id, action_type, twitter_username, points_earned, verified_at
		FROM twitter_verifications
		WHERE user_id = $1 AND server_id = $2
		ORDER BY verified_at DESC, id DESC
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения подтверждений: %w", err)
	}
	defer rows.Close()

	var result []*VerificationRecord
	for rows.Next() {
		var v VerificationRecord
		var action string
		if err := rows.Scan(&v.PostID, &action, &v.Username, &v.PointsEarned, &v.VerifiedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования подтверждения: %w", err)
		}
		v.Action = Action(action)
		result = append(result, &v)
	}
	return result, rows.Err()
}
