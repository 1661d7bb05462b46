// Package activity начисляет ежедневный бонус за активность в чате:
// если за скользящее окно пользователь написал достаточно сообщений,
// он получает бонус, но не чаще раза в календарный день.
// Кроме того, каждое из первых сообщений дня приносит фиксированные баллы.
// models.go описывает структуры движка.
package activity

import "time"

// ConstraintDaily — UNIQUE-ключ «одна награда в день».
const ConstraintDaily = "daily_activity_rewards_user_server_date_key"

// ConstraintMessageOrdinal — UNIQUE-ключ «одно начисление на порядковый номер сообщения дня».
const ConstraintMessageOrdinal = "daily_message_rewards_user_server_date_ordinal_key"

// Status — итог оценки активности.
type Status int

const (
	BelowThreshold  Status = iota // сообщений в окне меньше порога
	Rewarded                      // бонус начислен сейчас
	AlreadyRewarded               // бонус за сегодня уже был
)

func (s Status) String() string {
	switch s {
	case Rewarded:
		return "rewarded"
	case AlreadyRewarded:
		return "already_rewarded"
	default:
		return "below_threshold"
	}
}

// MarshalText отдаёт в JSON имя итога вместо числа.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Evaluation — ответ Evaluate / RecordMessage.
type Evaluation struct {
	Status       Status `json:"status"`
	MessageCount int    `json:"message_count"` // сообщений в окне (0, если проверка пропущена)
	Threshold    int    `json:"threshold"`
	PointsEarned int    `json:"points_earned"`
	// Баллы за само сообщение (только RecordMessage)
	MessagePoints int `json:"message_points"`
}

// MessageReward — запись в daily_message_rewards.
type MessageReward struct {
	UserID       string    `db:"user_id" json:"user_id"`
	TenantID     string    `db:"server_id" json:"server_id"`
	Date         time.Time `db:"reward_date" json:"date"`
	Ordinal      int       `db:"ordinal" json:"ordinal"` // номер оплаченного сообщения за день, с 1
	PointsEarned int       `db:"points_earned" json:"points_earned"`
	MessageTime  time.Time `db:"message_time" json:"message_time"`
}

// Reward — запись в daily_activity_rewards.
type Reward struct {
	UserID       string    `db:"user_id" json:"user_id"`
	TenantID     string    `db:"server_id" json:"server_id"`
	Date         time.Time `db:"reward_date" json:"date"`
	PointsEarned int       `db:"points_earned" json:"points_earned"`
	MessageCount int       `db:"message_count_when_rewarded" json:"message_count"`
	RewardTime   time.Time `db:"reward_time" json:"reward_time"`
}

// Stats — сводка активности пользователя.
type Stats struct {
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	MessageCount int       `json:"message_count"`
	Threshold    int       `json:"threshold"`
	Remaining    int       `json:"remaining"` // сколько ещё сообщений до бонуса
	TodayReward  *Reward   `json:"today_reward,omitempty"`
}
