package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role labels carried on the user record. The authentication flow never
// assigns anything other than the default; role changes belong to an admin
// surface outside this service.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a durable identity record. Every valid user has Email or
// FederatedSubject set (or both); the storage layer enforces uniqueness of
// each when present.
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     []byte // set only for locally registered users, write-only outside verification
	FederatedSubject string // external IdP's stable subject id
	Provider         string // IdP label recorded at last federated login
	DisplayName      string
	PhotoURL         string
	Role             string
	LastLogin        time.Time
	CreatedAt        time.Time
}

// PublicUser is the caller-facing view of a user. It never carries the
// password hash or the raw federated subject.
type PublicUser struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Role        string    `json:"role"`
}

// Public returns the external representation of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Provider:    u.Provider,
		Role:        u.Role,
	}
}
