package models

import (
	"time"
)

// Password reset token as it is kept in storage
// Only hash of the token is stored, the raw value is handed to the user once
type ResetToken struct {
	TokenHash string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (t ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
