package mailer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/bizmarket/internal/logger"
)

func TestNewPostmarkSender(t *testing.T) {
	t.Parallel()

	valid := PostmarkConfig{ServerToken: "server", AccountToken: "account", SenderEmail: "noreply@example.com"}

	t.Run("valid config", func(t *testing.T) {
		s, err := NewPostmarkSender(valid)

		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	tests := []struct {
		name   string
		modify func(*PostmarkConfig)
	}{
		{"no server token", func(c *PostmarkConfig) { c.ServerToken = "" }},
		{"no account token", func(c *PostmarkConfig) { c.AccountToken = "" }},
		{"no sender", func(c *PostmarkConfig) { c.SenderEmail = "" }},
		{"bad sender", func(c *PostmarkConfig) { c.SenderEmail = "noreply" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)

			_, err := NewPostmarkSender(cfg)

			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestPostmarkSender_SendResetLink(t *testing.T) {
	t.Parallel()

	newSender := func(t *testing.T, handler http.HandlerFunc) *PostmarkSender {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)

		s, err := NewPostmarkSender(PostmarkConfig{ServerToken: "server", AccountToken: "account", SenderEmail: "noreply@example.com"})
		require.NoError(t, err)
		s.client.BaseURL = srv.URL
		return s
	}

	t.Run("sends email", func(t *testing.T) {
		var got map[string]any
		s := newSender(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/email"))
			assert.Equal(t, "server", r.Header.Get("X-Postmark-Server-Token"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ErrorCode":0,"Message":"OK","MessageID":"id"}`))
		})

		err := s.SendResetLink(t.Context(), "ada@example.com", "http://localhost/reset?token=abc")

		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", got["To"])
		assert.Equal(t, "noreply@example.com", got["From"])
		assert.Contains(t, got["TextBody"], "http://localhost/reset?token=abc")
	})

	t.Run("postmark error code", func(t *testing.T) {
		s := newSender(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
		})

		err := s.SendResetLink(t.Context(), "ada@example.com", "http://localhost/reset?token=abc")

		require.ErrorIs(t, err, ErrFailedToSendEmail)
	})
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(logger.NewNoOpLogger())

	require.NoError(t, s.SendResetLink(t.Context(), "ada@example.com", "http://localhost/reset?token=abc"))
}

func TestResetBody(t *testing.T) {
	assert.Contains(t, resetHTML(`http://x/?a=1&b="2"`), "a=1&amp;b=&#34;2&#34;")
	assert.Contains(t, resetText("http://x"), "http://x")
}
