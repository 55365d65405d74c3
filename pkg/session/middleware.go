package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sessionworks/authgate/pkg/auth"
)

// UserSource resolves a verified token subject into a user record.
type UserSource interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error)
}

// MiddlewareConfig configures the request authenticator middleware.
type MiddlewareConfig struct {
	Service      *Service
	Users        UserSource
	Unauthorized http.HandlerFunc // response for any authentication failure
}

// Middleware creates a request authenticator with default settings.
func Middleware(service *Service, users UserSource) func(next http.Handler) http.Handler {
	return MiddlewareWithConfig(MiddlewareConfig{Service: service, Users: users})
}

// MiddlewareWithConfig creates a request authenticator middleware. A missing
// token, a failed verification and an unresolvable subject all produce the
// same response; the cause is never distinguished to the caller.
func MiddlewareWithConfig(cfg MiddlewareConfig) func(next http.Handler) http.Handler {
	if cfg.Unauthorized == nil {
		cfg.Unauthorized = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				cfg.Unauthorized(w, r)
				return
			}

			claims, err := cfg.Service.Verify(tokenString)
			if err != nil {
				cfg.Unauthorized(w, r)
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				cfg.Unauthorized(w, r)
				return
			}

			user, err := cfg.Users.GetUserByID(r.Context(), userID)
			if err != nil {
				cfg.Unauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// bearerToken extracts a token from the "Authorization: Bearer <token>"
// header per RFC 6750.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}
