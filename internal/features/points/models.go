// Package points ведёт баланс баллов пользователя на сервере
// и журнал аудита всех его изменений.
// models.go описывает структуры для балансов, изменений и записей аудита.
package points

import "time"

// Типы операций в журнале аудита
const (
	OpAdminAdjust  = "admin_adjust"  // ручная корректировка модератором
	OpCheckin      = "checkin"       // ежедневная отметка
	OpActivity     = "activity"      // награда за активность в чате
	OpMessage      = "message"       // баллы за одно из первых сообщений дня
	OpSocial       = "social"        // подтверждённое действие в соцсети
	OpSocialTriple = "social_triple" // бонус за все три действия с постом
	OpBindingBonus = "binding_bonus" // бонус за первую привязку аккаунта
)

// SystemActor — инициатор автоматических начислений.
const SystemActor = "system"

var knownOps = map[string]bool{
	OpAdminAdjust:  true,
	OpCheckin:      true,
	OpActivity:     true,
	OpMessage:      true,
	OpSocial:       true,
	OpSocialTriple: true,
	OpBindingBonus: true,
}

// Balance — баланс пользователя на одном сервере.
type Balance struct {
	UserID        string    `db:"user_id" json:"user_id"`
	TenantID      string    `db:"server_id" json:"server_id"`
	Points        int       `db:"points" json:"points"`
	TotalCheckins int       `db:"total_checkins" json:"total_checkins"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	Rank          int       `db:"-" json:"rank,omitempty"` // место в рейтинге (только для Leaderboard)
}

// Change — запрошенное изменение баланса.
type Change struct {
	UserID    string // чей баланс меняем
	TenantID  string // на каком сервере
	Delta     int    // положительное — начисление, отрицательное — списание
	ActorID   string // кто инициировал (модератор или SystemActor)
	Reason    string // обязательная причина
	Operation string // тип операции для аудита (OpXxx)
}

// Result — итог применённого изменения.
type Result struct {
	PointsBefore int   `json:"points_before"`
	PointsAfter  int   `json:"points_after"`
	PointsChange int   `json:"points_change"` // запрошенное изменение
	Clamped      bool  `json:"clamped"`       // итог обрезан до нуля
	AuditID      int64 `json:"audit_id"`
}

// AuditEntry — одна запись журнала аудита. Записи только добавляются.
type AuditEntry struct {
	ID            int64     `db:"id" json:"id"`
	OperationType string    `db:"operation_type" json:"operation_type"`
	ActorID       string    `db:"actor_id" json:"actor_id"`
	TargetUserID  string    `db:"target_user_id" json:"target_user_id"`
	TenantID      string    `db:"server_id" json:"server_id"`
	PointsChange  int       `db:"points_change" json:"points_change"`
	PointsBefore  int       `db:"points_before" json:"points_before"`
	PointsAfter   int       `db:"points_after" json:"points_after"`
	Clamped       bool      `db:"clamped" json:"clamped"`
	Reason        string    `db:"reason" json:"reason"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter — параметры выборки журнала. TenantID обязателен.
type AuditFilter struct {
	TenantID string
	ActorID  string
	TargetID string
	Limit    int
}

// Account — пара (пользователь, сервер).
type Account struct {
	UserID   string
	TenantID string
}

// ChainBreak — запись, у которой «до» не совпадает с «после» предыдущей.
type ChainBreak struct {
	AuditID        int64 `json:"audit_id"`
	ExpectedBefore int   `json:"expected_before"`
	ActualBefore   int   `json:"actual_before"`
}

// Reconciliation — результат сверки баланса с журналом аудита.
type Reconciliation struct {
	UserID      string       `json:"user_id"`
	TenantID    string       `json:"server_id"`
	Balance     int          `json:"balance"`
	Entries     int          `json:"entries"`
	ReplayedTo  int          `json:"replayed_to"` // points_after последней записи
	Drift       int          `json:"drift"`       // Balance - ReplayedTo
	ChainBreaks []ChainBreak `json:"chain_breaks,omitempty"`
	BadMath     []int64      `json:"bad_math,omitempty"` // записи, где after != before + change без clamped
	Clamped     []int64      `json:"clamped,omitempty"`  // записи с обрезкой до нуля
}

// Consistent — журнал и баланс сходятся.
// Обрезки до нуля не считаются расхождением, но видны в Clamped.
func (r *Reconciliation) Consistent() bool {
	return r.Drift == 0 && len(r.ChainBreaks) == 0 && len(r.BadMath) == 0
}
