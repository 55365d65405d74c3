// Package auth implements the identity core of the gateway: verifying a
// caller's proof of identity and reconciling it onto a durable user record.
//
// Two authentication paths are supported. The password path is explicit:
// users register with an email and password, and later authenticate against
// the stored bcrypt hash. The federated path is self-provisioning: a verified
// identity assertion from an external IdP resolves to an existing user by its
// stable subject id, or creates one on first sight.
//
// Services are constructed with an injected Storage implementation and
// configured through functional options:
//
//	passwordAuth := auth.NewPasswordService(storage,
//		auth.WithPasswordLogger(log),
//	)
//	federatedAuth := auth.NewFederatedService(storage, verifier,
//		auth.WithFederatedLogger(log),
//	)
//
// Failure semantics are deliberately coarse. Authenticate returns the same
// ErrInvalidCredentials for an unknown email and a wrong password, and
// Reconcile collapses every verifier rejection into ErrInvalidAssertion.
// Callers must not add detail to these errors; the uniformity is a security
// property, not an oversight.
//
// Storage uniqueness constraints are the only serialization point for
// concurrent requests racing to create the same email or federated subject.
// Both services treat a duplicate-key failure from CreateUser as equivalent
// to having found the record up front.
package auth
