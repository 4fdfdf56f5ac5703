package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = errors.New("password is too short")

	// Signed access or refresh token failed verification (signature, expiry, issuer, audience or kind)
	ErrTokenInvalid = errors.New("token is invalid")

	ErrResetTokenNotFound = errors.New("reset token not found")
	ErrResetTokenExpired  = errors.New("reset token is expired")

	// Returned to callers for any unusable reset token; not found and expired are not distinguished
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
)
