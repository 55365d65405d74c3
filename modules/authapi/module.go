// Package authapi exposes the authentication core over HTTP. It owns the
// input shapes, the response envelope and the mapping from error kinds to
// status codes; no recovery logic lives here.
package authapi

import (
	"io"
	"log/slog"

	"github.com/sessionworks/authgate/pkg/auth"
	"github.com/sessionworks/authgate/pkg/session"
)

// Service wires the authentication services to the HTTP surface.
type Service struct {
	password  auth.PasswordAuthenticator
	federated auth.FederatedAuthenticator
	sessions  *session.Service
	users     session.UserSource
	logger    *slog.Logger
}

// Option configures the module during construction.
type Option func(*Service)

// WithLogger sets a custom logger for the module.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates the auth HTTP module.
func NewService(
	password auth.PasswordAuthenticator,
	federated auth.FederatedAuthenticator,
	sessions *session.Service,
	users session.UserSource,
	opts ...Option,
) *Service {
	s := &Service{
		password:  password,
		federated: federated,
		sessions:  sessions,
		users:     users,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}
