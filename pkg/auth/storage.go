package auth

import (
	"context"

	"github.com/google/uuid"
)

// Storage defines the durable user repository consumed by the authentication
// services. Each operation is atomic. Implementations enforce email and
// federated-subject uniqueness and translate their native duplicate-key
// failures into ErrEmailAlreadyExists or ErrFederatedSubjectExists, and
// missing rows into ErrUserNotFound.
type Storage interface {
	CreateUser(ctx context.Context, user *User) error
	// UpdateUser persists the mutable profile fields: DisplayName, PhotoURL,
	// Provider and LastLogin. Identity fields are fixed at creation.
	UpdateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByFederatedSubject(ctx context.Context, subject string) (*User, error)
}
