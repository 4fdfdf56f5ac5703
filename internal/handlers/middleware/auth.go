package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/handlers/render"
	"github.com/nkiryanov/bizmarket/internal/handlers/userctx"
	"github.com/nkiryanov/bizmarket/internal/models"
)

// Machine readable bearer failure codes
const (
	CodeTokenMissing      = "TOKEN_MISSING"
	CodeInvalidAuthHeader = "INVALID_AUTH_HEADER"
	CodeTokenInvalid      = "TOKEN_INVALID"
	CodeUserNotFound      = "USER_NOT_FOUND"
)

var (
	ErrTokenMissing      = errors.New("authorization header is missing")
	ErrInvalidAuthHeader = errors.New("authorization header is not a bearer token")
)

type authService interface {
	VerifyAccess(ctx context.Context, token string) (models.User, time.Time, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// Extract token from 'Authorization: Bearer <token>' header
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrTokenMissing
	}

	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidAuthHeader
	}

	return token, nil
}

// Authenticate the request bearer
// On failure error response is already written and ok is false
func Authenticate(as authService, l errorLogger, w http.ResponseWriter, r *http.Request) (user models.User, expiresAt time.Time, ok bool) {
	token, err := BearerToken(r)
	if err != nil {
		if errors.Is(err, ErrTokenMissing) {
			render.ErrorWithCode(w, "Access token is required", CodeTokenMissing, http.StatusUnauthorized)
		} else {
			render.ErrorWithCode(w, "Invalid authorization header format", CodeInvalidAuthHeader, http.StatusUnauthorized)
		}
		return user, expiresAt, false
	}

	user, expiresAt, err = as.VerifyAccess(r.Context(), token)
	switch {
	case err == nil:
		return user, expiresAt, true
	case errors.Is(err, apperrors.ErrTokenInvalid):
		render.ErrorWithCode(w, "Invalid or expired token", CodeTokenInvalid, http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ErrorWithCode(w, "User not found", CodeUserNotFound, http.StatusUnauthorized)
	default:
		l.Error("failed to verify access token", "error", err)
		render.InternalError(w)
	}

	return user, expiresAt, false
}

func AuthMiddleware(as authService, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _, ok := Authenticate(as, l, w, r)
			if !ok {
				return
			}
			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
