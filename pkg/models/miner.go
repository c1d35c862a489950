package models

import (
	"time"

	"github.com/google/uuid"
)

// Miner is a worker identity allowed to claim and run jobs.
// Only the bcrypt hash of the password is stored.
type Miner struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	EthereumAddress string    `db:"ethereum_address" json:"ethereumAddress"`
	Username        string    `db:"username"         json:"username"`
	Email           string    `db:"email"            json:"email"`
	PasswordHash    string    `db:"password_hash"    json:"-"`
	CreatedAt       time.Time `db:"created_at"       json:"createdAt"`
}
