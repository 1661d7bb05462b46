// Package moderation хранит предупреждения, выданные модераторами.
package moderation

import "time"

// Warning — одно предупреждение.
type Warning struct {
	ID          int64     `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	TenantID    string    `db:"server_id" json:"server_id"`
	ModeratorID string    `db:"moderator_id" json:"moderator_id"`
	Reason      string    `db:"reason" json:"reason"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
