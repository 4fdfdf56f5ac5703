package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/bizmarket/internal/handlers/middleware"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/models"
	"github.com/nkiryanov/bizmarket/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(authService authService, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)

	mux := http.NewServeMux()

	mux.Handle("POST /auth/signin", handleSignIn(authService, logger))
	mux.Handle("POST /auth/signup", handleSignUp(authService, logger))
	mux.Handle("POST /auth/refresh-token", handleRefreshToken(authService, logger))
	mux.Handle("GET /auth/verify-token", handleVerifyToken(authService, logger))
	mux.Handle("POST /auth/forgot-password", handleForgotPassword(authService, logger))
	mux.Handle("POST /auth/reset-password", handleResetPassword(authService, logger))
	mux.Handle("POST /auth/change-password", withAuth(handleChangePassword(authService, logger)))

	mux.Handle("GET /users/me", withAuth(handleUserMe()))
	mux.Handle("DELETE /users/me", withAuth(handleDeleteMe(authService, logger)))

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(),
	)

	return handler
}

type authService interface {
	// Register user and issue token pair
	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	SignUp(ctx context.Context, params auth.SignUpParams) (models.User, models.TokenPair, error)

	// Has to return apperrors.ErrInvalidCredentials for unknown email or wrong password
	SignIn(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)

	// Rotate token pair
	// Has to return apperrors.ErrTokenInvalid or apperrors.ErrUserNotFound
	Refresh(ctx context.Context, refresh string) (models.User, models.TokenPair, error)

	// Verify access token and its owner existence
	VerifyAccess(ctx context.Context, token string) (models.User, time.Time, error)

	// Must not reveal whether the email is registered
	ForgotPassword(ctx context.Context, email string) error

	// Has to return apperrors.ErrResetTokenInvalid or apperrors.ErrPasswordTooShort
	ResetPassword(ctx context.Context, token string, newPassword string) error

	ChangePassword(ctx context.Context, userID int64, currentPassword string, newPassword string) error
	DeleteAccount(ctx context.Context, userID int64) error
}
