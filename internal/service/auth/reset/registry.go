package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/models"
	"github.com/nkiryanov/bizmarket/internal/repository"
)

const (
	DefaultTTL = time.Hour

	// 256 bits of entropy
	tokenBytes = 32
)

type Config struct {
	// Token lifetime, default is used if not set
	TTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

// Registry of single-use password reset tokens
// Raw tokens are never stored, only their sha256 hashes
type Registry struct {
	repo   repository.ResetTokenRepo
	logger logger.Logger
	ttl    time.Duration
	now    func() time.Time
}

func New(repo repository.ResetTokenRepo, l logger.Logger, cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Registry{
		repo:   repo,
		logger: l,
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues new token for the user and returns its raw value
// Expired tokens are purged first; purge failure does not prevent creation
func (r *Registry) Create(ctx context.Context, userID int64) (string, error) {
	now := r.now()
	r.purge(ctx, now)

	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating reset token. Err: %w", err)
	}
	token := hex.EncodeToString(b)

	err := r.repo.Save(ctx, models.ResetToken{
		TokenHash: HashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("error while saving reset token. Err: %w", err)
	}

	return token, nil
}

// Consume takes the token out of the registry and returns the owner id
// Unknown, already used and expired tokens are all reported as apperrors.ErrResetTokenInvalid
func (r *Registry) Consume(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, apperrors.ErrResetTokenInvalid
	}

	stored, err := r.repo.Take(ctx, HashToken(token), r.now())
	switch {
	case errors.Is(err, apperrors.ErrResetTokenNotFound), errors.Is(err, apperrors.ErrResetTokenExpired):
		return 0, apperrors.ErrResetTokenInvalid
	case err != nil:
		return 0, fmt.Errorf("error while consuming reset token. Err: %w", err)
	}

	return stored.UserID, nil
}

func (r *Registry) InvalidateAll(ctx context.Context, userID int64) error {
	deleted, err := r.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("error while invalidating reset tokens. Err: %w", err)
	}
	if deleted > 0 {
		r.logger.Debug("reset tokens invalidated", "user_id", userID, "count", deleted)
	}
	return nil
}
