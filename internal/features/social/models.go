// Package social учитывает подтверждённые действия в соцсети
// (лайк, ретвит, ответ) с целевыми постами сервера.
// models.go описывает привязки аккаунтов, целевые посты и подтверждения.
package social

import "time"

// Action — тип действия с постом.
type Action string

const (
	ActionLike    Action = "like"
	ActionRetweet Action = "retweet"
	ActionReply   Action = "reply"

	// actionTriple — служебная запись «все три действия», по ней бонус не выдаётся дважды
	actionTriple Action = "triple"
)

// Actions — действия, за которые начисляются баллы, в порядке вывода.
var Actions = []Action{ActionLike, ActionRetweet, ActionReply}

// ParseAction проверяет тип действия.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// ConstraintAction — UNIQUE-ключ (пользователь, сервер, пост, действие).
const ConstraintAction = "twitter_verifications_unique_action"

// Status — итог записи подтверждения.
type Status int

const (
	Accepted        Status = iota // новое действие, баллы начислены
	AlreadyRecorded               // это действие уже засчитано
)

func (s Status) String() string {
	if s == AlreadyRecorded {
		return "already_recorded"
	}
	return "accepted"
}

// MarshalText отдаёт в JSON имя итога вместо числа.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Verification — подтверждённый внешним сервисом факт действия.
type Verification struct {
	UserID     string
	TenantID   string
	PostID     string
	Action     Action
	ExternalID string // ID аккаунта в соцсети, если сервис проверки его сообщил
}

// VerificationResult — ответ RecordVerification.
type VerificationResult struct {
	Status       Status `json:"status"`
	PointsEarned int    `json:"points_earned"`
	TripleBonus  int    `json:"triple_bonus"` // 0, если бонус не выдан этим вызовом
}

// VerificationRecord — строка twitter_verifications.
type VerificationRecord struct {
	PostID       string    `db:"tweet_id" json:"post_id"`
	Action       Action    `db:"action_type" json:"action"`
	Username     string    `db:"twitter_username" json:"username"`
	PointsEarned int       `db:"points_earned" json:"points_earned"`
	VerifiedAt   time.Time `db:"verified_at" json:"verified_at"`
}

// Tokens — OAuth-токены аккаунта. В базе хранятся только в зашифрованном виде.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Binding — привязка аккаунта соцсети к пользователю на сервере.
type Binding struct {
	UserID     string    `db:"user_id" json:"user_id"`
	TenantID   string    `db:"server_id" json:"server_id"`
	ExternalID string    `db:"twitter_user_id" json:"external_id"`
	Username   string    `db:"twitter_username" json:"username"`
	Verified   bool      `db:"verified" json:"verified"`
	Tokens     *Tokens   `db:"-" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// BindResult — ответ Bind.
type BindResult struct {
	FirstBind    bool `json:"first_bind"`    // строка создана, а не обновлена
	BonusAwarded int  `json:"bonus_awarded"` // бонус за первую привязку (0, если уже был)
}

// TargetPost — пост, действия с которым вознаграждаются.
type TargetPost struct {
	TenantID          string    `db:"server_id" json:"server_id" yaml:"-"`
	PostID            string    `db:"tweet_id" json:"post_id" yaml:"post_id"`
	URL               string    `db:"tweet_url" json:"url" yaml:"url"`
	Description       string    `db:"description" json:"description" yaml:"description"`
	LikePoints        int       `db:"like_points" json:"like_points" yaml:"like_points"`
	RetweetPoints     int       `db:"retweet_points" json:"retweet_points" yaml:"retweet_points"`
	ReplyPoints       int       `db:"reply_points" json:"reply_points" yaml:"reply_points"`
	TripleBonusPoints int       `db:"triple_bonus_points" json:"triple_bonus_points" yaml:"triple_bonus_points"`
	Active            bool      `db:"is_active" json:"active" yaml:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// PointsFor возвращает баллы за действие.
func (p *TargetPost) PointsFor(a Action) int {
	switch a {
	case ActionLike:
		return p.LikePoints
	case ActionRetweet:
		return p.RetweetPoints
	case ActionReply:
		return p.ReplyPoints
	}
	return 0
}
