package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/bizmarket/internal/models"
)

type CreateUserParams struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

// User repository interface
// Soft deleted users are invisible for every method
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Replace password hash
	// If user not found must return apperrors.ErrUserNotFound
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error

	// Mark user deleted. The record is retained but never authenticates again
	// If user not found must return apperrors.ErrUserNotFound
	SoftDeleteUser(ctx context.Context, userID int64) error
}

// Password reset token storage
// Implementations: postgres (shared), redis (shared), memory (single instance only)
type ResetTokenRepo interface {
	// Save new token
	Save(ctx context.Context, token models.ResetToken) error

	// Atomically fetch and delete the token: two concurrent calls must not both succeed
	// If token not exists must return apperrors.ErrResetTokenNotFound
	// If token expired must delete it and return apperrors.ErrResetTokenExpired
	Take(ctx context.Context, tokenHash string, now time.Time) (models.ResetToken, error)

	// Delete tokens expired at 'now'
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Delete all tokens of the user
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

type Storage interface {
	User() UserRepo
	ResetToken() ResetTokenRepo
}
