package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sessionworks/authgate/pkg/auth"
	"github.com/sessionworks/authgate/pkg/logger"
	"github.com/sessionworks/authgate/pkg/validator"
)

// Envelope is the standard JSON response structure.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains error information surfaced to the caller.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// ErrInvalidJSON is returned when the request body cannot be bound.
var ErrInvalidJSON = errors.New("invalid json body")

func (s *Service) respond(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps an error kind onto its status code and public shape.
// Downstream failures keep their detail in the logs and surface as an
// opaque 500; authentication failures stay deliberately vague.
func (s *Service) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		s.respond(w, http.StatusBadRequest, Envelope{Error: &ErrorDetail{
			Code:    "validation_failed",
			Message: "validation failed",
			Details: ve.Fields(),
		}})
		return
	}

	switch {
	case errors.Is(err, ErrInvalidJSON):
		s.respond(w, http.StatusBadRequest, Envelope{Error: &ErrorDetail{
			Code:    "invalid_request",
			Message: "request body must be valid JSON",
		}})
	case errors.Is(err, auth.ErrEmailAlreadyExists):
		s.respond(w, http.StatusBadRequest, Envelope{Error: &ErrorDetail{
			Code:    "email_already_exists",
			Message: "email already registered",
		}})
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.respond(w, http.StatusBadRequest, Envelope{Error: &ErrorDetail{
			Code:    "invalid_credentials",
			Message: "invalid credentials",
		}})
	case errors.Is(err, auth.ErrInvalidAssertion):
		s.respond(w, http.StatusUnauthorized, Envelope{Error: &ErrorDetail{
			Code:    "invalid_assertion",
			Message: "identity assertion could not be verified",
		}})
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			logger.Error(err),
			logger.Component("authapi"),
		)
		s.respond(w, http.StatusInternalServerError, Envelope{Error: &ErrorDetail{
			Code:    "internal_error",
			Message: "internal server error",
		}})
	}
}

// unauthorized is the uniform response for every protected-route
// authentication failure.
func (s *Service) unauthorized(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusUnauthorized, Envelope{Error: &ErrorDetail{
		Code:    "unauthorized",
		Message: "unauthorized",
	}})
}

// bindJSON decodes a JSON request body strictly: the content type must be
// application/json, unknown fields are rejected, and trailing data fails.
func bindJSON(r *http.Request, v any) error {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, _ := strings.Cut(contentType, ";"); strings.TrimSpace(mediaType) != "application/json" {
		return fmt.Errorf("%w: expected application/json", ErrInvalidJSON)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
	}

	return nil
}
