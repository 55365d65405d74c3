// Package postgres implements the user repository on PostgreSQL. The two
// partial unique indexes on email and federated subject are the service's
// serialization point for concurrent creates.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sessionworks/authgate/pkg/auth"
	"github.com/sessionworks/authgate/pkg/pg"
)

const (
	emailConstraint   = "users_email_key"
	subjectConstraint = "users_federated_subject_key"
)

// Storage is a PostgreSQL-backed auth.Storage.
type Storage struct {
	pool *pgxpool.Pool
}

// New creates a storage backed by the given pool.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

const userColumns = `id, email, password_hash, federated_subject, provider, display_name, photo_url, role, last_login, created_at`

// CreateUser inserts a new user record. Duplicate identity fields are
// reported as the matching typed error so callers can treat a lost create
// race like an ordinary conflict.
func (s *Storage) CreateUser(ctx context.Context, user *auth.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.PasswordHash, user.FederatedSubject,
		user.Provider, user.DisplayName, user.PhotoURL, user.Role,
		user.LastLogin, user.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			switch pg.ConstraintName(err) {
			case emailConstraint:
				return auth.ErrEmailAlreadyExists
			case subjectConstraint:
				return auth.ErrFederatedSubjectExists
			}
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateUser persists the mutable profile fields of an existing user.
func (s *Storage) UpdateUser(ctx context.Context, user *auth.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET provider = $2, display_name = $3, photo_url = $4, last_login = $5
		WHERE id = $1`,
		user.ID, user.Provider, user.DisplayName, user.PhotoURL, user.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// GetUserByID fetches a user by primary key.
func (s *Storage) GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByEmail fetches a user by normalized email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	if email == "" {
		return nil, auth.ErrUserNotFound
	}
	return s.getUser(ctx, `WHERE email = $1`, email)
}

// GetUserByFederatedSubject fetches a user by its IdP subject id.
func (s *Storage) GetUserByFederatedSubject(ctx context.Context, subject string) (*auth.User, error) {
	if subject == "" {
		return nil, auth.ErrUserNotFound
	}
	return s.getUser(ctx, `WHERE federated_subject = $1`, subject)
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*auth.User, error) {
	var user auth.User
	err := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FederatedSubject,
		&user.Provider, &user.DisplayName, &user.PhotoURL, &user.Role,
		&user.LastLogin, &user.CreatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

// Compile-time interface assertion
var _ auth.Storage = (*Storage)(nil)
