// Package oauth хранит временное состояние PKCE-рукопожатия
// между запросом авторизации и обратным вызовом внешнего сервиса.
// Строка живёт не дольше TTL и читается ровно один раз.
package oauth

import "time"

// ConstraintState — UNIQUE-ключ на state.
const ConstraintState = "oauth_temp_storage_state_key"

// Handshake — сохранённое рукопожатие.
type Handshake struct {
	State        string    `db:"state" json:"state"`
	CodeVerifier string    `db:"code_verifier" json:"-"`
	UserID       string    `db:"discord_user_id" json:"user_id"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Status — итог Consume.
type Status int

const (
	Consumed Status = iota
	Expired
	NotFound
)

func (s Status) String() string {
	switch s {
	case Consumed:
		return "consumed"
	case Expired:
		return "expired"
	}
	return "not_found"
}

// MarshalText отдаёт в JSON имя итога вместо числа.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConsumeResult — ответ Consume. CodeVerifier заполнен только при Consumed.
type ConsumeResult struct {
	Status       Status
	CodeVerifier string
	UserID       string
}
