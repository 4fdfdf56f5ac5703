package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/models"
)

// In-process reset token storage
// Safe for concurrent use, but state is not shared between server instances:
// use it for single instance deployments and tests only
type ResetTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]models.ResetToken
}

func NewResetTokenRepo() *ResetTokenRepo {
	return &ResetTokenRepo{tokens: make(map[string]models.ResetToken)}
}

func (r *ResetTokenRepo) Save(_ context.Context, token models.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token.TokenHash] = token
	return nil
}

func (r *ResetTokenRepo) Take(_ context.Context, tokenHash string, now time.Time) (models.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenHash]
	if !ok {
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenNotFound)
	}
	delete(r.tokens, tokenHash)

	if token.Expired(now) {
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenExpired)
	}
	return token, nil
}

func (r *ResetTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(t models.ResetToken) bool { return t.Expired(now) }), nil
}

func (r *ResetTokenRepo) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	return r.deleteWhere(func(t models.ResetToken) bool { return t.UserID == userID }), nil
}

func (r *ResetTokenRepo) deleteWhere(match func(models.ResetToken) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, token := range r.tokens {
		if match(token) {
			delete(r.tokens, hash)
			deleted++
		}
	}
	return deleted
}
