package auth

import "context"

// Claims is the verified claim set extracted from a federated identity
// assertion. Subject is the only field guaranteed to be present.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// AssertionVerifier validates an externally issued identity assertion.
// Signature and expiry checks are delegated to the IdP's own verification
// infrastructure; the core only consumes the verified claim set.
//
// Implementations return ErrVerifierUnavailable when the verification
// service cannot be reached, and any other error is treated as a rejected
// assertion.
type AssertionVerifier interface {
	Verify(ctx context.Context, rawAssertion string) (Claims, error)
}
