// Package earlyrole ведёт реестр участников ранней роли сервера
// и адреса их кошельков.
package earlyrole

import "time"

// MaxWalletLen — длина колонки wallet_address.
const MaxWalletLen = 128

// Member — участник ранней роли на одном сервере.
type Member struct {
	UserID        string    `db:"user_id" json:"user_id"`
	TenantID      string    `db:"guild_id" json:"server_id"`
	WalletAddress *string   `db:"wallet_address" json:"wallet_address,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
