package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type loggerFunc func(string, ...any)

func (f loggerFunc) Info(msg string, v ...any) { f(msg, v...) }

// Collect logged key values into map
func fields(t *testing.T, args []any) map[string]any {
	t.Helper()
	require.Len(t, args, 10, "method, uri, duration, status and size expected")

	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		require.True(t, ok, "odd args must be keys")
		m[key] = args[i+1]
	}
	return m
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   string
	}{
		{
			name: "explicit status",
			path: "/auth/signin",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"no"}`))
			},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"no"}`,
		},
		{
			name: "implicit ok",
			path: "/users/me?verbose=1",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("hi"))
			},
			wantStatus: http.StatusOK,
			wantBody:   "hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := 0
			var msg string
			var args []any
			l := loggerFunc(func(m string, v ...any) {
				called++
				msg = m
				args = v
			})

			srv := httptest.NewServer(LoggerMiddleware(l)(tt.handler))
			defer srv.Close()

			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err, "should make request to test server")
			defer resp.Body.Close() // nolint:errcheck
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "should read response body")

			require.Equal(t, tt.wantStatus, resp.StatusCode)
			require.Equal(t, tt.wantBody, string(body))

			require.Equal(t, 1, called, "logger should be called once")
			require.Equal(t, "got HTTP request", msg)

			got := fields(t, args)
			require.Equal(t, "GET", got["method"])
			require.Equal(t, tt.path, got["uri"])
			require.NotEmpty(t, got["duration"])
			require.Equal(t, tt.wantStatus, got["status"])
			require.Equal(t, len(tt.wantBody), got["size"])
		})
	}
}
