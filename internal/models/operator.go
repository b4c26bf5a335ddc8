package models

import (
	"time"

	"github.com/google/uuid"
)

// Operator is a coordinator API user. RadioMesh has one flat network and no
// tenant concept, so this drops the teacher's TenantID/IsAdmin-per-tenant
// shape down to a single global role.
type Operator struct {
	ID           uuid.UUID `json:"id" db:"id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsAdmin      bool      `json:"isAdmin" db:"is_admin"`
}
