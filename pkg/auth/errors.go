package auth

import "errors"

// User and repository errors
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailAlreadyExists     = errors.New("email already exists")
	ErrFederatedSubjectExists = errors.New("federated subject already exists")
)

// Authentication errors. ErrInvalidCredentials is returned for both unknown
// email and wrong password; ErrInvalidAssertion covers every verifier
// rejection. Callers never learn which specific check failed.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidAssertion    = errors.New("invalid identity assertion")
	ErrVerifierUnavailable = errors.New("identity verifier unavailable")
)
