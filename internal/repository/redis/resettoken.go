package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/models"
)

const defaultKeyPrefix = "bizmarket:reset:"

// Deletes every token listed in the user index set and the set itself in one step
var deleteByUserScript = goredis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local deleted = 0
for _, hash in ipairs(members) do
	deleted = deleted + redis.call('DEL', ARGV[1] .. hash)
end
redis.call('DEL', KEYS[1])
return deleted
`)

type storedToken struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Reset token storage shared by all server instances
// Every token lives under its own key with TTL, and every user has an index set of his token hashes
type ResetTokenRepo struct {
	client goredis.UniversalClient
	prefix string
}

func NewResetTokenRepo(client goredis.UniversalClient, prefix string) *ResetTokenRepo {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &ResetTokenRepo{client: client, prefix: prefix}
}

func (r *ResetTokenRepo) tokenKey(hash string) string {
	return r.prefix + hash
}

func (r *ResetTokenRepo) userKey(userID int64) string {
	return r.prefix + "user:" + strconv.FormatInt(userID, 10)
}

func (r *ResetTokenRepo) Save(ctx context.Context, token models.ResetToken) error {
	value, err := json.Marshal(storedToken{
		UserID:    token.UserID,
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode reset token: %w", err)
	}

	ttl := token.ExpiresAt.Sub(token.CreatedAt)
	userKey := r.userKey(token.UserID)

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.tokenKey(token.TokenHash), value, 0)
		pipe.ExpireAt(ctx, r.tokenKey(token.TokenHash), token.ExpiresAt)
		pipe.SAdd(ctx, userKey, token.TokenHash)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// GETDEL makes take atomic: only one concurrent caller gets the value
func (r *ResetTokenRepo) Take(ctx context.Context, tokenHash string, now time.Time) (models.ResetToken, error) {
	token := models.ResetToken{TokenHash: tokenHash}

	raw, err := r.client.GetDel(ctx, r.tokenKey(tokenHash)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenNotFound)
	case err != nil:
		return token, fmt.Errorf("redis error: %w", err)
	}

	var stored storedToken
	if err := json.Unmarshal(raw, &stored); err != nil {
		return token, fmt.Errorf("decode reset token: %w", err)
	}
	token.UserID = stored.UserID
	token.CreatedAt = stored.CreatedAt
	token.ExpiresAt = stored.ExpiresAt

	// Index cleanup is best effort, a stale member only costs one DEL on invalidation
	_ = r.client.SRem(ctx, r.userKey(token.UserID), tokenHash).Err()

	if token.Expired(now) {
		return token, fmt.Errorf("repo error: %w", apperrors.ErrResetTokenExpired)
	}
	return token, nil
}

// Redis expires keys by itself, nothing to purge
func (r *ResetTokenRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *ResetTokenRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	deleted, err := deleteByUserScript.Run(ctx, r.client, []string{r.userKey(userID)}, r.prefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return deleted, nil
}
