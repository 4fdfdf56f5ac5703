package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/handlers/render"
	"github.com/nkiryanov/bizmarket/internal/handlers/userctx"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/models"
)

// Outward representation of the user, password hash never leaves the server
type userResponse struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func handleUserMe() http.Handler {
	type response struct {
		Data userResponse `json:"data"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.InternalError(w)
			return
		}
		render.JSON(w, response{Data: newUserResponse(user)})
	})
}

func handleDeleteMe(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.InternalError(w)
			return
		}

		err := authService.DeleteAccount(r.Context(), user.ID)
		switch {
		case err == nil:
			render.JSON(w, messageResponse{Message: "Account deleted"})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.Error(w, "User not found", http.StatusNotFound)
		default:
			logger.Error("failed to delete account", "user_id", user.ID, "error", err)
			render.InternalError(w)
		}
	})
}
