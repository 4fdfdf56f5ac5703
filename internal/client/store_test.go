package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	tokens := Tokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("missing file is empty session", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

		got, err := store.Load()

		require.NoError(t, err)
		assert.True(t, got.Empty())
	})

	t.Run("save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")
		store := NewFileStore(path)

		require.NoError(t, store.Save(tokens))
		got, err := NewFileStore(path).Load()

		require.NoError(t, err)
		assert.Equal(t, tokens.AccessToken, got.AccessToken)
		assert.Equal(t, tokens.RefreshToken, got.RefreshToken)
		assert.True(t, tokens.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("readable by owner only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, NewFileStore(path).Save(tokens))

		info, err := os.Stat(path)

		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("save replaces previous tokens", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, store.Save(tokens))

		require.NoError(t, store.Save(Tokens{AccessToken: "new"}))
		got, err := store.Load()

		require.NoError(t, err)
		assert.Equal(t, "new", got.AccessToken)
		assert.Empty(t, got.RefreshToken)
	})

	t.Run("clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		store := NewFileStore(path)
		require.NoError(t, store.Save(tokens))

		require.NoError(t, store.Clear())
		require.NoError(t, store.Clear(), "clear must be idempotent")

		_, err := os.Stat(path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("corrupted file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

		_, err := NewFileStore(path).Load()

		require.Error(t, err)
	})
}

func TestSession(t *testing.T) {
	t.Run("replace in same epoch", func(t *testing.T) {
		store := NewMemoryStore()
		s, err := NewSession(store)
		require.NoError(t, err)
		require.NoError(t, s.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
		_, epoch := s.Current()

		replaced, err := s.Replace(epoch, Tokens{AccessToken: "a2", RefreshToken: "r2"})

		require.NoError(t, err)
		assert.True(t, replaced)
		current, sameEpoch := s.Current()
		assert.Equal(t, "a2", current.AccessToken)
		assert.Equal(t, epoch, sameEpoch, "refresh continues the session")

		stored, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "r2", stored.RefreshToken)
	})

	t.Run("replace after end discarded", func(t *testing.T) {
		store := NewMemoryStore()
		s, err := NewSession(store)
		require.NoError(t, err)
		require.NoError(t, s.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
		_, epoch := s.Current()
		require.NoError(t, s.End())

		replaced, err := s.Replace(epoch, Tokens{AccessToken: "a2", RefreshToken: "r2"})

		require.NoError(t, err)
		assert.False(t, replaced)
		current, _ := s.Current()
		assert.True(t, current.Empty())

		stored, err := store.Load()
		require.NoError(t, err)
		assert.True(t, stored.Empty())
	})

	t.Run("end if keeps newer session", func(t *testing.T) {
		s, err := NewSession(NewMemoryStore())
		require.NoError(t, err)
		require.NoError(t, s.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
		_, old := s.Current()
		require.NoError(t, s.Start(Tokens{AccessToken: "b1", RefreshToken: "q1"}))

		require.NoError(t, s.EndIf(old))

		current, _ := s.Current()
		assert.Equal(t, "b1", current.AccessToken)
	})
}
