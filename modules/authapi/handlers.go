package authapi

import (
	"net/http"
	"time"

	"github.com/sessionworks/authgate/pkg/auth"
	"github.com/sessionworks/authgate/pkg/session"
)

// RegisterRequest is the local registration input shape.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the local login input shape.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FederatedRequest carries a raw IdP assertion plus optional profile hints.
type FederatedRequest struct {
	ProviderAssertion string        `json:"provider_assertion"`
	Provider          string        `json:"provider"`
	ProfileHints      *ProfileHints `json:"profile_hints"`
}

// ProfileHints mirrors auth.ProfileHints on the wire.
type ProfileHints struct {
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

// SessionResponse is returned by every operation that establishes a session.
type SessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      auth.PublicUser `json:"user"`
}

// UserResponse is returned by identity lookups.
type UserResponse struct {
	User auth.PublicUser `json:"user"`
}

func (s *Service) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := bindJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.password.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.issueSession(w, r, user, http.StatusCreated)
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := bindJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.password.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.issueSession(w, r, user, http.StatusOK)
}

func (s *Service) federatedAuth(w http.ResponseWriter, r *http.Request) {
	var req FederatedRequest
	if err := bindJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var hints auth.ProfileHints
	if req.ProfileHints != nil {
		hints = auth.ProfileHints{
			DisplayName: req.ProfileHints.DisplayName,
			PhotoURL:    req.ProfileHints.PhotoURL,
		}
	}

	user, err := s.federated.Reconcile(r.Context(), req.ProviderAssertion, req.Provider, hints)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.issueSession(w, r, user, http.StatusOK)
}

func (s *Service) currentIdentity(w http.ResponseWriter, r *http.Request) {
	user, ok := session.UserFromContext(r.Context())
	if !ok {
		s.unauthorized(w, r)
		return
	}

	s.respond(w, http.StatusOK, Envelope{Data: UserResponse{User: user.Public()}})
}

func (s *Service) issueSession(w http.ResponseWriter, r *http.Request, user *auth.User, status int) {
	token, expiresAt, err := s.sessions.Issue(user)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respond(w, status, Envelope{Data: SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}})
}
