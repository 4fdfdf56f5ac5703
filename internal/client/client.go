package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

var ErrNotSignedIn = errors.New("not signed in")

// Error response returned by the API
type APIError struct {
	Status  int               `json:"-"`
	Message string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Report whether err is API error with given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type SignUpParams struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type sessionPayload struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (p sessionPayload) tokens(now time.Time) Tokens {
	return Tokens{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(p.ExpiresIn) * time.Second),
	}
}

type Option func(*Client)

// Transport used for the actual requests, http.DefaultTransport if not set
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// API client that keeps the session and refreshes tokens when API answers 401
type Client struct {
	baseURL *url.URL
	session *Session
	base    http.RoundTripper
	timeout time.Duration

	// Client with auth transport for API calls
	http *http.Client

	// Plain client for the refresh call itself
	plain *http.Client
}

func New(baseURL string, store TokenStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", baseURL)
	}

	session, err := NewSession(store)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	c := &Client{
		baseURL: u,
		session: session,
		base:    http.DefaultTransport,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.plain = &http.Client{Transport: c.base, Timeout: c.timeout}
	c.http = &http.Client{
		Transport: NewTransport(c.base, c.session, c.refresh),
		Timeout:   c.timeout,
	}
	return c, nil
}

// Current session tokens
func (c *Client) Tokens() Tokens {
	tokens, _ := c.session.Current()
	return tokens
}

func (c *Client) SignedIn() bool {
	return !c.Tokens().Empty()
}

func (c *Client) SignUp(ctx context.Context, params SignUpParams) (User, error) {
	var resp struct {
		Data   User `json:"data"`
		Tokens struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
			ExpiresIn    int64  `json:"expiresIn"`
		} `json:"tokens"`
	}
	if err := c.do(ctx, c.plain, http.MethodPost, "/auth/signup", params, &resp); err != nil {
		return User{}, err
	}

	// No tokens issued: keep the session as is
	if resp.Tokens.AccessToken == "" {
		return resp.Data, nil
	}

	payload := sessionPayload{
		User:         resp.Data,
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		ExpiresIn:    resp.Tokens.ExpiresIn,
	}
	return resp.Data, c.session.Start(payload.tokens(time.Now()))
}

func (c *Client) SignIn(ctx context.Context, email, password string) (User, error) {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var resp struct {
		Data sessionPayload `json:"data"`
	}
	if err := c.do(ctx, c.plain, http.MethodPost, "/auth/signin", req, &resp); err != nil {
		return User{}, err
	}

	return resp.Data.User, c.session.Start(resp.Data.tokens(time.Now()))
}

// Tokens are stateless, so sign out only forgets them
// Refresh that is in flight at this moment will not bring the session back
func (c *Client) SignOut() error {
	return c.session.End()
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	req := struct {
		Email string `json:"email"`
	}{Email: email}
	return c.do(ctx, c.plain, http.MethodPost, "/auth/forgot-password", req, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	req := struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}{Token: token, NewPassword: newPassword}
	return c.do(ctx, c.plain, http.MethodPost, "/auth/reset-password", req, nil)
}

// Verify current access token, return its user and expiration time
func (c *Client) VerifyToken(ctx context.Context) (User, time.Time, error) {
	if !c.SignedIn() {
		return User{}, time.Time{}, ErrNotSignedIn
	}

	var resp struct {
		Data struct {
			User      User      `json:"user"`
			Valid     bool      `json:"valid"`
			ExpiresAt time.Time `json:"expiresAt"`
		} `json:"data"`
	}
	if err := c.do(ctx, c.http, http.MethodGet, "/auth/verify-token", nil, &resp); err != nil {
		return User{}, time.Time{}, err
	}
	return resp.Data.User, resp.Data.ExpiresAt, nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	if !c.SignedIn() {
		return User{}, ErrNotSignedIn
	}

	var resp struct {
		Data User `json:"data"`
	}
	if err := c.do(ctx, c.http, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return User{}, err
	}
	return resp.Data, nil
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if !c.SignedIn() {
		return ErrNotSignedIn
	}

	req := struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}{CurrentPassword: currentPassword, NewPassword: newPassword}
	return c.do(ctx, c.http, http.MethodPost, "/auth/change-password", req, nil)
}

// Delete account and end the session
func (c *Client) DeleteAccount(ctx context.Context) error {
	if !c.SignedIn() {
		return ErrNotSignedIn
	}

	if err := c.do(ctx, c.http, http.MethodDelete, "/users/me", nil, nil); err != nil {
		return err
	}
	return c.session.End()
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	req := struct {
		RefreshToken string `json:"refreshToken"`
	}{RefreshToken: refreshToken}

	var resp struct {
		Data sessionPayload `json:"data"`
	}
	err := c.do(ctx, c.plain, http.MethodPost, "/auth/refresh-token", req, &resp)
	switch {
	case IsStatus(err, http.StatusUnauthorized), IsStatus(err, http.StatusBadRequest):
		return Tokens{}, fmt.Errorf("%w: %w", ErrRefreshRejected, err)
	case err != nil:
		return Tokens{}, err
	}
	return resp.Data.tokens(time.Now()), nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
