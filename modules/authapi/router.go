package authapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sessionworks/authgate/pkg/session"
)

// Handle returns the module's router, ready to be mounted.
//
//	r.Mount("/auth", svc.Handle())
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/register", s.register)
	r.Post("/login", s.login)
	r.Post("/federated", s.federatedAuth)

	r.Group(func(protected chi.Router) {
		protected.Use(session.MiddlewareWithConfig(session.MiddlewareConfig{
			Service:      s.sessions,
			Users:        s.users,
			Unauthorized: s.unauthorized,
		}))
		protected.Get("/me", s.currentIdentity)
	})

	return r
}
