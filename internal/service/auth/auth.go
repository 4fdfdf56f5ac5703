package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nkiryanov/bizmarket/internal/apperrors"
	"github.com/nkiryanov/bizmarket/internal/logger"
	"github.com/nkiryanov/bizmarket/internal/metrics"
	"github.com/nkiryanov/bizmarket/internal/models"
	"github.com/nkiryanov/bizmarket/internal/repository"
	"github.com/nkiryanov/bizmarket/internal/service/mailer"
)

const MinPasswordLength = 6

// Interface to create or verify user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Verify user provided password against known hashedPassword
	// Must be protected against timing attacks
	Verify(hashedPassword string, password string) bool
}

type TokenManager interface {
	IssuePair(user models.User) (models.TokenPair, error)
	VerifyAccess(token string) (models.TokenSubject, error)
	VerifyRefresh(token string) (models.TokenSubject, error)
}

type ResetRegistry interface {
	Create(ctx context.Context, userID int64) (string, error)
	Consume(ctx context.Context, token string) (int64, error)
	InvalidateAll(ctx context.Context, userID int64) error
}

type Config struct {
	// Hasher to use during user registration or login process
	// Bcrypt with default cost if not set
	Hasher PasswordHasher

	// Page the reset link points to, the token is added as 'token' query parameter
	ResetURL string
}

type SignUpParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Auth service
type AuthService struct {
	tokens TokenManager
	hasher PasswordHasher
	users  repository.UserRepo
	resets ResetRegistry
	sender mailer.Sender
	logger logger.Logger

	resetURL *url.URL

	// Compared against on sign in with unknown email, so both failures cost the same
	dummyHash string
}

func NewService(
	cfg Config,
	tokens TokenManager,
	users repository.UserRepo,
	resets ResetRegistry,
	sender mailer.Sender,
	l logger.Logger,
) (*AuthService, error) {
	if tokens == nil || users == nil || resets == nil || sender == nil {
		return nil, errors.New("token manager, repos and sender must not be nil")
	}

	if cfg.Hasher == nil {
		hasher, err := NewBcryptHasher(DefaultBcryptCost)
		if err != nil {
			return nil, err
		}
		cfg.Hasher = hasher
	}

	resetURL, err := url.Parse(cfg.ResetURL)
	if err != nil || resetURL.Scheme == "" || resetURL.Host == "" {
		return nil, fmt.Errorf("reset url must be absolute, got %q", cfg.ResetURL)
	}

	dummyHash, err := cfg.Hasher.Hash("dummy-password-never-matches")
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash: %w", err)
	}

	return &AuthService{
		tokens:    tokens,
		hasher:    cfg.Hasher,
		users:     users,
		resets:    resets,
		sender:    sender,
		logger:    l,
		resetURL:  resetURL,
		dummyHash: dummyHash,
	}, nil
}

func (s *AuthService) SignUp(ctx context.Context, params SignUpParams) (user models.User, pair models.TokenPair, err error) {
	defer func() { observe("signup", err) }()

	if len(params.Password) < MinPasswordLength {
		return user, pair, apperrors.ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, pair, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err = s.users.CreateUser(ctx, repository.CreateUserParams{
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return user, pair, err
	}

	pair, err = s.tokens.IssuePair(user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Unknown email and wrong password are both reported as apperrors.ErrInvalidCredentials
func (s *AuthService) SignIn(ctx context.Context, email string, password string) (user models.User, pair models.TokenPair, err error) {
	defer func() { observe("signin", err) }()

	user, err = s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.hasher.Verify(s.dummyHash, password)
		return models.User{}, pair, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, pair, fmt.Errorf("error while looking up user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return models.User{}, pair, apperrors.ErrInvalidCredentials
	}

	pair, err = s.tokens.IssuePair(user)
	if err != nil {
		return models.User{}, pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Verify access token and make sure its owner still exists
func (s *AuthService) VerifyAccess(ctx context.Context, token string) (user models.User, expiresAt time.Time, err error) {
	defer func() { observe("verify", err) }()

	subject, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return user, expiresAt, err
	}

	user, err = s.users.GetUserByID(ctx, subject.UserID)
	if err != nil {
		return user, expiresAt, err
	}

	return user, subject.ExpiresAt, nil
}

// Exchange refresh token for a brand new pair, both tokens are rotated
func (s *AuthService) Refresh(ctx context.Context, refresh string) (user models.User, pair models.TokenPair, err error) {
	defer func() { observe("refresh", err) }()

	subject, err := s.tokens.VerifyRefresh(refresh)
	if err != nil {
		return user, pair, err
	}

	user, err = s.users.GetUserByID(ctx, subject.UserID)
	if err != nil {
		return user, pair, err
	}

	pair, err = s.tokens.IssuePair(user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Send reset link if account exists
// Unknown email is not an error, caller must answer the same way in both cases
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { observe("forgot_password", err) }()

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("error while looking up user: %w", err)
	}

	token, err := s.resets.Create(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to create reset token", "user_id", user.ID, "error", err)
		return nil
	}

	if err := s.sender.SendResetLink(ctx, user.Email, s.resetLink(token)); err != nil {
		s.logger.Error("failed to deliver reset link", "user_id", user.ID, "error", err)
	}

	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) (err error) {
	defer func() { observe("reset_password", err) }()

	// Check before consuming so a short password does not burn the token
	if len(newPassword) < MinPasswordLength {
		return apperrors.ErrPasswordTooShort
	}

	userID, err := s.resets.Consume(ctx, token)
	if err != nil {
		return err
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return apperrors.ErrResetTokenInvalid
		}
		return err
	}

	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentPassword string, newPassword string) (err error) {
	defer func() { observe("change_password", err) }()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return apperrors.ErrInvalidCredentials
	}

	if len(newPassword) < MinPasswordLength {
		return apperrors.ErrPasswordTooShort
	}

	return s.setPassword(ctx, userID, newPassword)
}

// Soft delete the account, its tokens stop working on the next existence check
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64) (err error) {
	defer func() { observe("delete_account", err) }()

	if err := s.users.SoftDeleteUser(ctx, userID); err != nil {
		return err
	}

	if err := s.resets.InvalidateAll(ctx, userID); err != nil {
		return err
	}

	return nil
}

// Replace password hash and revoke every outstanding reset token of the user
func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := s.resets.InvalidateAll(ctx, userID); err != nil {
		return err
	}

	return nil
}

func (s *AuthService) resetLink(token string) string {
	link := *s.resetURL
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()
	return link.String()
}

// Count auth event: caller mistakes are failures, everything else unexpected is error
func observe(event string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case isClientError(err):
		outcome = metrics.OutcomeFailure
	default:
		outcome = metrics.OutcomeError
	}
	metrics.AuthEvents.WithLabelValues(event, outcome).Inc()
}

func isClientError(err error) bool {
	for _, target := range []error{
		apperrors.ErrInvalidCredentials,
		apperrors.ErrTokenInvalid,
		apperrors.ErrUserNotFound,
		apperrors.ErrUserAlreadyExists,
		apperrors.ErrResetTokenInvalid,
		apperrors.ErrPasswordTooShort,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
