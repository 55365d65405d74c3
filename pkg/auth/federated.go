package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sessionworks/authgate/pkg/logger"
	"github.com/sessionworks/authgate/pkg/sanitizer"
)

// ProfileHints carries optional profile attributes supplied by the caller
// alongside a federated assertion. Empty fields are ignored during merge.
type ProfileHints struct {
	DisplayName string
	PhotoURL    string
}

// FederatedAuthenticator defines assertion-based authentication operations.
type FederatedAuthenticator interface {
	Reconcile(ctx context.Context, rawAssertion, provider string, hints ProfileHints) (*User, error)
}

type federatedService struct {
	storage  Storage
	verifier AssertionVerifier
	logger   *slog.Logger
	now      func() time.Time
}

// FederatedOption configures a federated service during construction.
type FederatedOption func(*federatedService)

// WithFederatedLogger sets a custom logger for the service.
func WithFederatedLogger(l *slog.Logger) FederatedOption {
	return func(s *federatedService) {
		s.logger = l
	}
}

// WithFederatedClock overrides the time source, primarily for tests.
func WithFederatedClock(now func() time.Time) FederatedOption {
	return func(s *federatedService) {
		s.now = now
	}
}

// NewFederatedService creates an assertion-based authentication service.
// The verifier is injected explicitly; there is no ambient SDK state.
func NewFederatedService(storage Storage, verifier AssertionVerifier, opts ...FederatedOption) FederatedAuthenticator {
	s := &federatedService{
		storage:  storage,
		verifier: verifier,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Reconcile verifies a federated assertion and resolves it to a user record,
// creating one for a previously unseen subject. Absence is not a failure on
// this path: federation self-provisions, unlike explicit registration.
//
// Repeated calls with identical input are idempotent apart from the
// LastLogin bump.
func (s *federatedService) Reconcile(ctx context.Context, rawAssertion, provider string, hints ProfileHints) (*User, error) {
	claims, err := s.verifier.Verify(ctx, rawAssertion)
	if err != nil {
		if errors.Is(err, ErrVerifierUnavailable) {
			return nil, fmt.Errorf("failed to reach verifier: %w", err)
		}
		// The internal cause stays in the logs; callers see one opaque failure.
		s.logger.WarnContext(ctx, "assertion rejected",
			logger.Error(err),
			logger.Component("federated"),
			logger.Provider(provider),
		)
		return nil, ErrInvalidAssertion
	}

	if claims.Subject == "" {
		return nil, ErrInvalidAssertion
	}
	claims.Email = sanitizer.NormalizeEmail(claims.Email)

	user, err := s.storage.GetUserByFederatedSubject(ctx, claims.Subject)
	if err == nil {
		return s.merge(ctx, user, provider, hints)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up federated subject: %w", err)
	}

	user, err = s.provision(ctx, claims, provider, hints)
	if err == nil {
		return user, nil
	}

	// A concurrent request may have provisioned the same subject first; the
	// storage constraint serialized the race, so fall back to a merge.
	if errors.Is(err, ErrFederatedSubjectExists) {
		user, lookupErr := s.storage.GetUserByFederatedSubject(ctx, claims.Subject)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to resolve subject after create race: %w", lookupErr)
		}
		return s.merge(ctx, user, provider, hints)
	}

	return nil, err
}

func (s *federatedService) provision(ctx context.Context, claims Claims, provider string, hints ProfileHints) (*User, error) {
	displayName := hints.DisplayName
	if displayName == "" {
		displayName = claims.Name
	}
	if displayName == "" {
		displayName = emailLocalPart(claims.Email)
	}

	photoURL := hints.PhotoURL
	if photoURL == "" {
		photoURL = claims.Picture
	}

	now := s.now()
	user := &User{
		ID:               uuid.New(),
		Email:            claims.Email,
		FederatedSubject: claims.Subject,
		Provider:         provider,
		DisplayName:      displayName,
		PhotoURL:         photoURL,
		Role:             RoleUser,
		LastLogin:        now,
		CreatedAt:        now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrFederatedSubjectExists) {
			return nil, err
		}
		// The email belongs to an existing account with a different subject.
		// Refusing here prevents an IdP assertion from taking over a local
		// account; linking is a deliberate action, not a login side effect.
		if errors.Is(err, ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "federated user provisioned",
		logger.UserID(user.ID.String()),
		logger.Component("federated"),
		logger.Provider(provider),
	)

	return user, nil
}

// merge updates only the profile fields supplied in this call. A previously
// stored value is never nulled out by an omitted field.
func (s *federatedService) merge(ctx context.Context, user *User, provider string, hints ProfileHints) (*User, error) {
	if hints.DisplayName != "" {
		user.DisplayName = hints.DisplayName
	}
	if hints.PhotoURL != "" {
		user.PhotoURL = hints.PhotoURL
	}
	if provider != "" {
		user.Provider = provider
	}
	user.LastLogin = s.now()

	if err := s.storage.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

func emailLocalPart(email string) string {
	if email == "" {
		return ""
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Compile-time interface assertion
var _ FederatedAuthenticator = (*federatedService)(nil)
