package session

import (
	"context"

	"github.com/sessionworks/authgate/pkg/auth"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{ name string }

var userContextKey = &contextKey{name: "session_user"}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user attached by the middleware.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userContextKey).(*auth.User)
	return user, ok
}
