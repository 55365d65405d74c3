// Package session mints and validates the stateless bearer tokens that carry
// an established identity between requests.
//
// Tokens are HMAC-SHA256 signed JWTs holding the minimal claim set: the user
// id as subject, the federated subject when present, issued-at and a fixed
// expiry horizon. Validity is re-derived from signature and expiry alone;
// there is no server-side session table, so revocation before natural expiry
// is out of scope.
//
// The Service refuses to construct without a signing secret. Operating on a
// fallback secret is a misconfiguration the process must not survive.
package session
