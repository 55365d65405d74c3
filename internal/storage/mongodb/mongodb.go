// Package mongodb implements the user repository on MongoDB. Sparse unique
// indexes on email and federated subject play the same serialization role as
// the PostgreSQL constraints.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sessionworks/authgate/pkg/auth"
)

const (
	usersCollection = "users"

	emailIndex   = "email_unique"
	subjectIndex = "federated_subject_unique"
)

// Storage is a MongoDB-backed auth.Storage.
type Storage struct {
	users *mongo.Collection
}

// New creates a storage backed by the given database.
func New(db *mongo.Database) *Storage {
	return &Storage{users: db.Collection(usersCollection)}
}

// EnsureIndexes creates the uniqueness indexes the repository invariants
// depend on. Must be called once at startup before serving requests.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "federated_subject", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName(subjectIndex),
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// userDoc is the persisted shape. Identity fields use omitempty so the
// sparse unique indexes skip records that legitimately lack them.
type userDoc struct {
	ID               string    `bson:"_id"`
	Email            string    `bson:"email,omitempty"`
	PasswordHash     []byte    `bson:"password_hash,omitempty"`
	FederatedSubject string    `bson:"federated_subject,omitempty"`
	Provider         string    `bson:"provider,omitempty"`
	DisplayName      string    `bson:"display_name,omitempty"`
	PhotoURL         string    `bson:"photo_url,omitempty"`
	Role             string    `bson:"role"`
	LastLogin        time.Time `bson:"last_login"`
	CreatedAt        time.Time `bson:"created_at"`
}

func toDoc(user *auth.User) userDoc {
	return userDoc{
		ID:               user.ID.String(),
		Email:            user.Email,
		PasswordHash:     user.PasswordHash,
		FederatedSubject: user.FederatedSubject,
		Provider:         user.Provider,
		DisplayName:      user.DisplayName,
		PhotoURL:         user.PhotoURL,
		Role:             user.Role,
		LastLogin:        user.LastLogin,
		CreatedAt:        user.CreatedAt,
	}
}

func (d userDoc) toUser() (*auth.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &auth.User{
		ID:               id,
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		FederatedSubject: d.FederatedSubject,
		Provider:         d.Provider,
		DisplayName:      d.DisplayName,
		PhotoURL:         d.PhotoURL,
		Role:             d.Role,
		LastLogin:        d.LastLogin,
		CreatedAt:        d.CreatedAt,
	}, nil
}

// CreateUser inserts a new user document, translating duplicate-key
// failures into the typed conflict errors.
func (s *Storage) CreateUser(ctx context.Context, user *auth.User) error {
	_, err := s.users.InsertOne(ctx, toDoc(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			switch duplicateKeyField(err) {
			case "federated_subject":
				return auth.ErrFederatedSubjectExists
			case "email":
				return auth.ErrEmailAlreadyExists
			}
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// duplicateKeyField names the field whose unique index rejected a write, or
// "" when the violation cannot be attributed. The server reports the index
// key pattern on E11000; the index name in the message is the fallback for
// servers that omit it.
func duplicateKeyField(err error) string {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return ""
	}

	for _, werr := range we.WriteErrors {
		if werr.Code != 11000 {
			continue
		}

		if pattern := werr.Details.Lookup("keyPattern"); pattern.Type == bson.TypeEmbeddedDocument {
			if elems, err := pattern.Document().Elements(); err == nil && len(elems) > 0 {
				return elems[0].Key()
			}
		}

		switch {
		case strings.Contains(werr.Message, subjectIndex):
			return "federated_subject"
		case strings.Contains(werr.Message, emailIndex):
			return "email"
		}
	}

	return ""
}

// UpdateUser persists the mutable profile fields of an existing user.
func (s *Storage) UpdateUser(ctx context.Context, user *auth.User) error {
	res, err := s.users.UpdateByID(ctx, user.ID.String(), bson.M{
		"$set": bson.M{
			"provider":     user.Provider,
			"display_name": user.DisplayName,
			"photo_url":    user.PhotoURL,
			"last_login":   user.LastLogin,
		},
	})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// GetUserByID fetches a user by primary key.
func (s *Storage) GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.getUser(ctx, bson.M{"_id": id.String()})
}

// GetUserByEmail fetches a user by normalized email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	if email == "" {
		return nil, auth.ErrUserNotFound
	}
	return s.getUser(ctx, bson.M{"email": email})
}

// GetUserByFederatedSubject fetches a user by its IdP subject id.
func (s *Storage) GetUserByFederatedSubject(ctx context.Context, subject string) (*auth.User, error) {
	if subject == "" {
		return nil, auth.ErrUserNotFound
	}
	return s.getUser(ctx, bson.M{"federated_subject": subject})
}

func (s *Storage) getUser(ctx context.Context, filter bson.M) (*auth.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser()
}

// Compile-time interface assertion
var _ auth.Storage = (*Storage)(nil)
