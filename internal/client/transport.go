package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 10 * time.Second

var (
	// Server refused the refresh token
	ErrRefreshRejected = errors.New("refresh token rejected")

	// Session ended (no refresh token, refresh rejected or signed out while refreshing)
	ErrSessionEnded = errors.New("session ended")
)

// Exchange refresh token for a new pair
// Must return ErrRefreshRejected when server says the refresh token is no longer valid
type Refresher func(ctx context.Context, refreshToken string) (Tokens, error)

// Endpoints that are called without bearer token
var publicPaths = []string{
	"/auth/signin",
	"/auth/signup",
	"/auth/forgot-password",
	"/auth/reset-password",
	"/auth/refresh-token",
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// Round tripper that sets bearer token and transparently refreshes it once on 401
// Concurrent refreshes are coalesced: at most one refresh request is in flight per transport
type Transport struct {
	Base           http.RoundTripper
	RefreshTimeout time.Duration

	session *Session
	refresh Refresher
	group   singleflight.Group
}

func NewTransport(base http.RoundTripper, session *Session, refresh Refresher) *Transport {
	return &Transport{
		Base:           base,
		RefreshTimeout: defaultRefreshTimeout,
		session:        session,
		refresh:        refresh,
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isPublic(req.URL.Path) {
		return t.base().RoundTrip(req)
	}

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	sent, _ := t.session.Current()
	resp, err := t.send(req, getBody, sent.AccessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// Token already replaced by concurrent refresh, just retry with it
	current, _ := t.session.Current()
	if current.AccessToken != "" && current.AccessToken != sent.AccessToken {
		discard(resp)
		return t.send(req, getBody, current.AccessToken)
	}

	fresh, err := t.coalescedRefresh(req.Context(), sent)
	switch {
	case errors.Is(err, ErrSessionEnded):
		return resp, nil
	case err != nil:
		discard(resp)
		return nil, err
	}

	discard(resp)
	return t.send(req, getBody, fresh.AccessToken)
}

func (t *Transport) coalescedRefresh(ctx context.Context, sent Tokens) (Tokens, error) {
	v, err, _ := t.group.Do("refresh", func() (any, error) {
		current, epoch := t.session.Current()
		if current.AccessToken != "" && current.AccessToken != sent.AccessToken {
			return current, nil
		}

		if current.RefreshToken == "" {
			if err := t.session.EndIf(epoch); err != nil {
				return nil, err
			}
			return nil, ErrSessionEnded
		}

		// Refresh is shared by every waiting request, so it must outlive the one that started it
		timeout := t.RefreshTimeout
		if timeout <= 0 {
			timeout = defaultRefreshTimeout
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		fresh, err := t.refresh(ctx, current.RefreshToken)
		switch {
		case errors.Is(err, ErrRefreshRejected):
			if err := t.session.EndIf(epoch); err != nil {
				return nil, err
			}
			return nil, ErrSessionEnded
		case err != nil:
			return nil, fmt.Errorf("refresh tokens: %w", err)
		}

		replaced, err := t.session.Replace(epoch, fresh)
		if err != nil {
			return nil, err
		}
		if !replaced {
			return nil, ErrSessionEnded
		}
		return fresh, nil
	})
	if err != nil {
		return Tokens{}, err
	}
	return v.(Tokens), nil
}

func (t *Transport) send(req *http.Request, getBody func() (io.ReadCloser, error), accessToken string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	if accessToken != "" {
		r.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return t.base().RoundTrip(r)
}

// Request may be sent twice, so keep a way to read the body again
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
