package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/handlers/middleware"
	"github.com/nkiryanov/bizmarket/internal/handlers/render"
	"github.com/nkiryanov/bizmarket/internal/handlers/userctx"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/models"
	"github.com/nkiryanov/bizmarket/internal/service/auth"
)

var passwordTooShortMessage = fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength)

type messageResponse struct {
	Message string `json:"message"`
}

type sessionData struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

type sessionResponse struct {
	Data    sessionData `json:"data"`
	Message string      `json:"message"`
}

func newSessionData(user models.User, pair models.TokenPair) sessionData {
	return sessionData{
		User:         newUserResponse(user),
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		ExpiresIn:    int64(time.Until(pair.Access.ExpiresAt).Round(time.Second) / time.Second),
	}
}

func handleSignIn(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := authService.SignIn(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			render.JSON(w, sessionResponse{Data: newSessionData(user, pair), Message: "Signed in successfully"})
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.Error(w, "Invalid email or password", http.StatusUnauthorized)
		default:
			logger.Error("failed to sign in", "error", err)
			render.InternalError(w)
		}
	})
}

// Sign up issues tokens the same way sign in does
// 'data' keeps the user alone, tokens are rendered next to it
func handleSignUp(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		FirstName string `json:"firstname" validate:"notblank,max=100"`
		LastName  string `json:"lastname" validate:"notblank,max=100"`
		Email     string `json:"email" validate:"required,email,max=254"`
		Password  string `json:"password" validate:"required,min=6,max=256"`
	}
	type tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	type response struct {
		Data    userResponse `json:"data"`
		Tokens  tokens       `json:"tokens"`
		Message string       `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := authService.SignUp(r.Context(), auth.SignUpParams{
			FirstName: data.FirstName,
			LastName:  data.LastName,
			Email:     data.Email,
			Password:  data.Password,
		})
		switch {
		case err == nil:
			session := newSessionData(user, pair)
			render.JSONWithStatus(w, response{
				Data: session.User,
				Tokens: tokens{
					AccessToken:  session.AccessToken,
					RefreshToken: session.RefreshToken,
					ExpiresIn:    session.ExpiresIn,
				},
				Message: "User registered successfully",
			}, http.StatusCreated)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Error(w, "User already exists", http.StatusConflict)
		case errors.Is(err, apperrors.ErrPasswordTooShort):
			render.Error(w, passwordTooShortMessage, http.StatusBadRequest)
		default:
			logger.Error("failed to sign up", "error", err)
			render.InternalError(w)
		}
	})
}

func handleRefreshToken(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := authService.Refresh(r.Context(), data.RefreshToken)
		switch {
		case err == nil:
			render.JSON(w, sessionResponse{Data: newSessionData(user, pair), Message: "Tokens refreshed successfully"})
		case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrUserNotFound):
			render.Error(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		default:
			logger.Error("failed to refresh tokens", "error", err)
			render.InternalError(w)
		}
	})
}

func handleVerifyToken(authService authService, logger logger.Logger) http.Handler {
	type data struct {
		User      userResponse `json:"user"`
		Valid     bool         `json:"valid"`
		ExpiresAt time.Time    `json:"expiresAt"`
	}
	type response struct {
		Data    data   `json:"data"`
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, expiresAt, ok := middleware.Authenticate(authService, logger, w, r)
		if !ok {
			return
		}

		render.JSON(w, response{
			Data:    data{User: newUserResponse(user), Valid: true, ExpiresAt: expiresAt.UTC()},
			Message: "Token is valid",
		})
	})
}

func handleForgotPassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := authService.ForgotPassword(r.Context(), data.Email); err != nil {
			logger.Error("failed to handle forgot password", "error", err)
			render.InternalError(w)
			return
		}

		render.JSON(w, messageResponse{Message: "If the email is registered, a password reset link has been sent"})
	})
}

func handleResetPassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=6,max=256"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = authService.ResetPassword(r.Context(), data.Token, data.NewPassword)
		switch {
		case err == nil:
			render.JSON(w, messageResponse{Message: "Password has been reset successfully"})
		case errors.Is(err, apperrors.ErrResetTokenInvalid):
			render.Error(w, "Invalid or expired reset token", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrPasswordTooShort):
			render.Error(w, passwordTooShortMessage, http.StatusBadRequest)
		default:
			logger.Error("failed to reset password", "error", err)
			render.InternalError(w)
		}
	})
}

func handleChangePassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=6,max=256"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.InternalError(w)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = authService.ChangePassword(r.Context(), user.ID, data.CurrentPassword, data.NewPassword)
		switch {
		case err == nil:
			render.JSON(w, messageResponse{Message: "Password changed successfully"})
		case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrUserNotFound):
			render.Error(w, "Invalid current password", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrPasswordTooShort):
			render.Error(w, passwordTooShortMessage, http.StatusBadRequest)
		default:
			logger.Error("failed to change password", "error", err)
			render.InternalError(w)
		}
	})
}
