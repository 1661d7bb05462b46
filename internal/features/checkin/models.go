// Package checkin реализует ежедневные отметки со стриками.
// models.go описывает запись отметки и результат операции.
package checkin

import "time"

// ConstraintDaily — UNIQUE-ключ «одна отметка в день», он же ключ идемпотентности.
const ConstraintDaily = "daily_checkins_user_server_date_key"

// Status — итог попытки отметиться.
type Status int

const (
	CheckedIn        Status = iota // новая отметка, баллы начислены
	AlreadyCheckedIn               // сегодня уже отмечался, ничего не изменилось
)

func (s Status) String() string {
	if s == AlreadyCheckedIn {
		return "already_checked_in"
	}
	return "checked_in"
}

// MarshalText отдаёт в JSON имя итога вместо числа.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record — одна отметка в таблице daily_checkins.
type Record struct {
	UserID       string    `db:"user_id" json:"user_id"`
	TenantID     string    `db:"server_id" json:"server_id"`
	Date         time.Time `db:"checkin_date" json:"date"` // полночь UTC календарного дня
	PointsEarned int       `db:"points_earned" json:"points_earned"`
	Streak       int       `db:"streak_count" json:"streak"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Result — ответ CheckIn.
type Result struct {
	Status       Status    `json:"status"`
	Date         time.Time `json:"date"`
	Streak       int       `json:"streak"`
	PointsEarned int       `json:"points_earned"` // для AlreadyCheckedIn — сколько было начислено в тот раз
	TotalPoints  int       `json:"total_points"`
}
