package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sessionworks/authgate/pkg/logger"
	"github.com/sessionworks/authgate/pkg/sanitizer"
	"github.com/sessionworks/authgate/pkg/validator"
)

// maxBcryptPasswordBytes is bcrypt's input limit. GenerateFromPassword
// rejects anything longer, so validation enforces the same bound in bytes.
const maxBcryptPasswordBytes = 72

// PasswordAuthenticator defines password-based authentication operations.
type PasswordAuthenticator interface {
	Register(ctx context.Context, email, password, name string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

type passwordService struct {
	storage    Storage
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time

	minPasswordLen   int
	maxPasswordBytes int
	minNameLen       int
}

// PasswordOption configures a password service during construction.
type PasswordOption func(*passwordService)

// WithPasswordLogger sets a custom logger for the service.
func WithPasswordLogger(l *slog.Logger) PasswordOption {
	return func(s *passwordService) {
		s.logger = l
	}
}

// WithBcryptCost sets the bcrypt cost for password hashing.
func WithBcryptCost(cost int) PasswordOption {
	return func(s *passwordService) {
		s.bcryptCost = cost
	}
}

// WithPasswordClock overrides the time source, primarily for tests.
func WithPasswordClock(now func() time.Time) PasswordOption {
	return func(s *passwordService) {
		s.now = now
	}
}

// NewPasswordService creates a new password authentication service.
func NewPasswordService(storage Storage, opts ...PasswordOption) PasswordAuthenticator {
	s := &passwordService{
		storage:          storage,
		bcryptCost:       bcrypt.DefaultCost,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:              time.Now,
		minPasswordLen:   8,
		maxPasswordBytes: maxBcryptPasswordBytes,
		minNameLen:       2,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register creates a new user with email, password and display name.
// Returns ErrEmailAlreadyExists if the email is taken, including when a
// concurrent registration wins the create race.
func (s *passwordService) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = sanitizer.NormalizeEmail(email)

	if err := validator.Apply(
		validator.ValidEmail("email", email),
		validator.MinLen("password", password, s.minPasswordLen),
		validator.MaxBytes("password", password, s.maxPasswordBytes),
		validator.MinLen("name", name, s.minNameLen),
	); err != nil {
		return nil, err
	}

	_, err := s.storage.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailAlreadyExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
		Role:         RoleUser,
		LastLogin:    now,
		CreatedAt:    now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		// The unique constraint is the serialization point for concurrent
		// registrations; a lost race surfaces the same way as a prior lookup hit.
		if errors.Is(err, ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		logger.UserID(user.ID.String()),
		logger.Component("password"),
	)

	return user, nil
}

// Authenticate verifies email and password, returns the user if valid.
// Returns ErrInvalidCredentials for any failure: unknown email, a user
// without a password, and a wrong password are indistinguishable.
func (s *passwordService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = sanitizer.NormalizeEmail(email)

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Federation-only accounts carry no hash and cannot log in with a password.
	if len(user.PasswordHash) == 0 {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user.LastLogin = s.now()
	if err := s.storage.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	return user, nil
}

// Compile-time interface assertion
var _ PasswordAuthenticator = (*passwordService)(nil)
