package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionworks/authgate/pkg/auth"
)

// Config holds session token settings. The secret has no default: startup
// fails when none is provisioned.
type Config struct {
	Secret string        `env:"SESSION_SECRET,required"`
	TTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	Issuer string        `env:"SESSION_ISSUER" envDefault:"authgate"`
}

var (
	ErrMissingSecret = errors.New("session: missing signing secret")
	ErrTokenInvalid  = errors.New("session: invalid token")
	ErrTokenExpired  = errors.New("session: token expired")
)

// Claims is the session token claim set.
type Claims struct {
	jwt.RegisteredClaims
	FederatedSubject string `json:"fid,omitempty"`
}

// Service issues and verifies session tokens with a server-held secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a Service during construction.
type Option func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a session token service. Returns ErrMissingSecret when the
// secret is empty rather than signing with a known default.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	s := &Service{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 168 * time.Hour
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Issue mints a signed token for the user and returns it with its expiry.
func (s *Service) Issue(user *auth.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		FederatedSubject: user.FederatedSubject,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature and temporal claims of a token. Expiry is the
// only failure distinguished; everything else collapses into ErrTokenInvalid.
func (s *Service) Verify(tokenString string) (Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}
