package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/models"
)

type ResetTokenRepo struct {
	DB DBTX
}

const saveResetToken = `-- name: SaveResetToken
INSERT INTO reset_tokens (token_hash, user_id, created_at, expires_at)
VALUES ($1, $2, $3, $4)
`

func (r *ResetTokenRepo) Save(ctx context.Context, token models.ResetToken) error {
	_, err := r.DB.Exec(ctx, saveResetToken, token.TokenHash, token.UserID, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DELETE ... RETURNING makes take atomic: the row lock lets only one concurrent caller get it
const takeResetToken = `-- name: TakeResetToken
DELETE FROM reset_tokens
WHERE token_hash = $1
RETURNING token_hash, user_id, created_at, expires_at
`

func (r *ResetTokenRepo) Take(ctx context.Context, tokenHash string, now time.Time) (models.ResetToken, error) {
	rows, _ := r.DB.Query(ctx, takeResetToken, tokenHash)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.ResetToken, error) {
		var t models.ResetToken
		err := row.Scan(&t.TokenHash, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
		return t, err
	})

	switch {
	case err == nil && token.Expired(now):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenExpired)
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteExpiredResetTokens = `-- name: DeleteExpiredResetTokens
DELETE FROM reset_tokens
WHERE expires_at <= $1
`

func (r *ResetTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredResetTokens, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteUserResetTokens = `-- name: DeleteUserResetTokens
DELETE FROM reset_tokens
WHERE user_id = $1
`

func (r *ResetTokenRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteUserResetTokens, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}
