// Package idp implements the federated identity verifier client. It
// delegates signature and expiry validation of identity assertions to the
// IdP's tokeninfo endpoint and returns the verified claim set; no key
// material is held locally.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sessionworks/authgate/pkg/auth"
)

// Config holds the verifier endpoint settings. The default endpoint is
// Google's tokeninfo service, which validates Firebase and Google identity
// tokens against the provider's published keys.
type Config struct {
	TokenInfoURL string        `env:"IDP_TOKENINFO_URL" envDefault:"https://oauth2.googleapis.com/tokeninfo"`
	Audience     string        `env:"IDP_AUDIENCE"`
	Timeout      time.Duration `env:"IDP_TIMEOUT" envDefault:"10s"`
}

// Client verifies identity assertions against the configured endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// New creates a verifier client. The client is passed into the federated
// authentication service at startup; nothing here is process-global.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// tokenInfo is the subset of the tokeninfo response the gateway consumes.
// Google returns booleans and numbers as strings on this endpoint.
type tokenInfo struct {
	Subject       string `json:"sub"`
	Audience      string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify submits the raw assertion to the verification endpoint. The
// endpoint rejects expired, malformed and mis-signed tokens; this client
// additionally pins the audience when one is configured.
func (c *Client) Verify(ctx context.Context, rawAssertion string) (auth.Claims, error) {
	if rawAssertion == "" {
		return auth.Claims{}, fmt.Errorf("%w: empty assertion", auth.ErrInvalidAssertion)
	}

	endpoint, err := url.Parse(c.cfg.TokenInfoURL)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: bad endpoint: %w", auth.ErrVerifierUnavailable, err)
	}
	q := endpoint.Query()
	q.Set("id_token", rawAssertion)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %w", auth.ErrVerifierUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %w", auth.ErrVerifierUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decoding
	case resp.StatusCode >= http.StatusInternalServerError:
		return auth.Claims{}, fmt.Errorf("%w: endpoint returned status %d", auth.ErrVerifierUnavailable, resp.StatusCode)
	default:
		return auth.Claims{}, fmt.Errorf("%w: endpoint returned status %d", auth.ErrInvalidAssertion, resp.StatusCode)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.Claims{}, fmt.Errorf("%w: malformed verifier response: %w", auth.ErrVerifierUnavailable, err)
	}

	if info.Subject == "" {
		return auth.Claims{}, fmt.Errorf("%w: missing subject", auth.ErrInvalidAssertion)
	}
	if c.cfg.Audience != "" && info.Audience != c.cfg.Audience {
		return auth.Claims{}, fmt.Errorf("%w: audience mismatch", auth.ErrInvalidAssertion)
	}

	return auth.Claims{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified == "true",
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}

// Compile-time interface assertion
var _ auth.AssertionVerifier = (*Client)(nil)
