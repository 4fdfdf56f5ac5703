package reset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/repository/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Memory repo with failing purge
type brokenPurgeRepo struct {
	*memory.ResetTokenRepo
	purgeCalls atomic.Int32
}

func (r *brokenPurgeRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	r.purgeCalls.Add(1)
	return 0, errors.New("storage is down")
}

func Test_Registry(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	newRegistry := func() (*Registry, *memory.ResetTokenRepo, *clock) {
		c := &clock{now: start}
		repo := memory.NewResetTokenRepo()
		return New(repo, logger.NewNoOpLogger(), Config{Now: c.Now}), repo, c
	}

	t.Run("create and consume", func(t *testing.T) {
		r, _, _ := newRegistry()

		token, err := r.Create(t.Context(), 7)
		require.NoError(t, err)
		assert.Len(t, token, 64, "32 random bytes hex encoded")

		userID, err := r.Consume(t.Context(), token)
		require.NoError(t, err)
		assert.EqualValues(t, 7, userID)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		r, _, _ := newRegistry()

		seen := make(map[string]struct{})
		for range 100 {
			token, err := r.Create(t.Context(), 7)
			require.NoError(t, err)
			seen[token] = struct{}{}
		}

		assert.Len(t, seen, 100)
	})

	t.Run("only hash is stored", func(t *testing.T) {
		r, repo, _ := newRegistry()

		token, err := r.Create(t.Context(), 7)
		require.NoError(t, err)

		_, err = repo.Take(t.Context(), token, start)
		require.ErrorIs(t, err, apperrors.ErrResetTokenNotFound, "raw token must not be a storage key")

		stored, err := repo.Take(t.Context(), HashToken(token), start)
		require.NoError(t, err)
		assert.Equal(t, start.Add(DefaultTTL), stored.ExpiresAt)
	})

	t.Run("consume twice", func(t *testing.T) {
		r, _, _ := newRegistry()
		token, err := r.Create(t.Context(), 7)
		require.NoError(t, err)

		_, err = r.Consume(t.Context(), token)
		require.NoError(t, err)

		_, err = r.Consume(t.Context(), token)
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
	})

	t.Run("consume unknown or empty", func(t *testing.T) {
		r, _, _ := newRegistry()

		_, err := r.Consume(t.Context(), "deadbeef")
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)

		_, err = r.Consume(t.Context(), "")
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
	})

	t.Run("expiry boundary", func(t *testing.T) {
		tests := []struct {
			name    string
			advance time.Duration
			isValid bool
		}{
			{"just before ttl", DefaultTTL - time.Nanosecond, true},
			{"exactly at ttl", DefaultTTL, false},
			{"after ttl", DefaultTTL + time.Minute, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r, _, c := newRegistry()
				token, err := r.Create(t.Context(), 7)
				require.NoError(t, err)

				c.Advance(tt.advance)
				_, err = r.Consume(t.Context(), token)

				if tt.isValid {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
				}
			})
		}
	})

	t.Run("expired token consumed once is gone", func(t *testing.T) {
		r, _, c := newRegistry()
		token, err := r.Create(t.Context(), 7)
		require.NoError(t, err)

		c.Advance(2 * DefaultTTL)
		_, err = r.Consume(t.Context(), token)
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)

		c.Advance(-2 * DefaultTTL)
		_, err = r.Consume(t.Context(), token)
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid, "expired token deleted on first consume")
	})

	t.Run("create purges expired", func(t *testing.T) {
		r, repo, c := newRegistry()
		old, err := r.Create(t.Context(), 7)
		require.NoError(t, err)

		c.Advance(2 * DefaultTTL)
		_, err = r.Create(t.Context(), 8)
		require.NoError(t, err)

		_, err = repo.Take(t.Context(), HashToken(old), start)
		require.ErrorIs(t, err, apperrors.ErrResetTokenNotFound, "expired token purged by create")
	})

	t.Run("purge failure does not block create", func(t *testing.T) {
		repo := &brokenPurgeRepo{ResetTokenRepo: memory.NewResetTokenRepo()}
		r := New(repo, logger.NewNoOpLogger(), Config{Now: func() time.Time { return start }})

		token, err := r.Create(t.Context(), 7)
		require.NoError(t, err)
		assert.EqualValues(t, 1, repo.purgeCalls.Load())

		userID, err := r.Consume(t.Context(), token)
		require.NoError(t, err)
		assert.EqualValues(t, 7, userID)
	})

	t.Run("invalidate all", func(t *testing.T) {
		r, _, _ := newRegistry()
		first, err := r.Create(t.Context(), 7)
		require.NoError(t, err)
		second, err := r.Create(t.Context(), 7)
		require.NoError(t, err)
		other, err := r.Create(t.Context(), 8)
		require.NoError(t, err)

		require.NoError(t, r.InvalidateAll(t.Context(), 7))

		_, err = r.Consume(t.Context(), first)
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
		_, err = r.Consume(t.Context(), second)
		require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
		_, err = r.Consume(t.Context(), other)
		require.NoError(t, err)
	})

	t.Run("concurrent consume succeeds once", func(t *testing.T) {
		r, _, _ := newRegistry()
		token, err := r.Create(t.Context(), 7)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
		)
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := r.Consume(t.Context(), token); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, succeeded.Load())
	})
}

