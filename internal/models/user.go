package models

import (
	"time"
)

// Credential record
// PasswordHash must never leave the service layer, handlers render users through their own DTO
type User struct {
	ID           int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	DeletedAt    *time.Time // nil if user not deleted
}
