package authapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionworks/authgate/modules/authapi"
	"github.com/sessionworks/authgate/pkg/auth"
	"github.com/sessionworks/authgate/pkg/session"
)

// memStorage is an in-memory auth.Storage with the same uniqueness
// semantics as the real backends.
type memStorage struct {
	mu    sync.Mutex
	users map[uuid.UUID]auth.User
}

func newMemStorage() *memStorage {
	return &memStorage{users: make(map[uuid.UUID]auth.User)}
}

func (m *memStorage) CreateUser(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if user.Email != "" && u.Email == user.Email {
			return auth.ErrEmailAlreadyExists
		}
		if user.FederatedSubject != "" && u.FederatedSubject == user.FederatedSubject {
			return auth.ErrFederatedSubjectExists
		}
	}

	m.users[user.ID] = *user
	return nil
}

func (m *memStorage) UpdateUser(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[user.ID]
	if !ok {
		return auth.ErrUserNotFound
	}

	stored.DisplayName = user.DisplayName
	stored.PhotoURL = user.PhotoURL
	stored.Provider = user.Provider
	stored.LastLogin = user.LastLogin
	m.users[user.ID] = stored
	return nil
}

func (m *memStorage) GetUserByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, auth.ErrUserNotFound
}

func (m *memStorage) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if email == "" {
		return nil, auth.ErrUserNotFound
	}
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (m *memStorage) GetUserByFederatedSubject(_ context.Context, subject string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if subject == "" {
		return nil, auth.ErrUserNotFound
	}
	for _, u := range m.users {
		if u.FederatedSubject == subject {
			u := u
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

// stubVerifier maps known assertions to claim sets.
type stubVerifier struct {
	claims map[string]auth.Claims
	err    error
}

func (v *stubVerifier) Verify(_ context.Context, rawAssertion string) (auth.Claims, error) {
	if v.err != nil {
		return auth.Claims{}, v.err
	}
	if c, ok := v.claims[rawAssertion]; ok {
		return c, nil
	}
	return auth.Claims{}, fmt.Errorf("%w: unknown assertion", auth.ErrInvalidAssertion)
}

func newTestAPI(t *testing.T, verifier auth.AssertionVerifier) http.Handler {
	t.Helper()

	store := newMemStorage()

	sessions, err := session.New(session.Config{
		Secret: "test-secret-0123456789",
		TTL:    time.Hour,
		Issuer: "authgate",
	})
	require.NoError(t, err)

	if verifier == nil {
		verifier = &stubVerifier{}
	}

	svc := authapi.NewService(
		auth.NewPasswordService(store),
		auth.NewFederatedService(store, verifier),
		sessions,
		store,
	)

	return svc.Handle()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

type sessionBody struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      auth.PublicUser `json:"user"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionBody {
	t.Helper()

	env := decodeEnvelope(t, rec)
	require.Nil(t, env.Error)

	var body sessionBody
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return body
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("creates a user and returns a session", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := doJSON(t, api, http.MethodPost, "/register", authapi.RegisterRequest{
			Email:    "a@x.com",
			Password: "hunter2hunter2",
			Name:     "Ada",
		}, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeSession(t, rec)
		assert.NotEmpty(t, body.Token)
		assert.True(t, body.ExpiresAt.After(time.Now()))
		assert.Equal(t, "a@x.com", body.User.Email)
		assert.Equal(t, "Ada", body.User.DisplayName)
		assert.Equal(t, auth.RoleUser, body.User.Role)
		assert.NotEqual(t, uuid.Nil, body.User.ID)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		req := authapi.RegisterRequest{Email: "a@x.com", Password: "hunter2hunter2", Name: "Ada"}
		require.Equal(t, http.StatusCreated, doJSON(t, api, http.MethodPost, "/register", req, nil).Code)

		rec := doJSON(t, api, http.MethodPost, "/register", req, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "email_already_exists", env.Error.Code)
	})

	t.Run("invalid input returns field details", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := doJSON(t, api, http.MethodPost, "/register", authapi.RegisterRequest{
			Email:    "not-an-email",
			Password: "short",
			Name:     "A",
		}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_failed", env.Error.Code)
		assert.Contains(t, env.Error.Details, "email")
		assert.Contains(t, env.Error.Details, "password")
		assert.Contains(t, env.Error.Details, "name")
	})

	t.Run("overlong password is a validation failure", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		rec := doJSON(t, api, http.MethodPost, "/register", authapi.RegisterRequest{
			Email:    "a@x.com",
			Password: strings.Repeat("a", 100),
			Name:     "Ada",
		}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_failed", env.Error.Code)
		assert.Contains(t, env.Error.Details, "password")
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_request", env.Error.Code)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("returns the registered user", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		created := decodeSession(t, doJSON(t, api, http.MethodPost, "/register", authapi.RegisterRequest{
			Email:    "a@x.com",
			Password: "hunter2hunter2",
			Name:     "Ada",
		}, nil))

		rec := doJSON(t, api, http.MethodPost, "/login", authapi.LoginRequest{
			Email:    "a@x.com",
			Password: "hunter2hunter2",
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeSession(t, rec)
		assert.Equal(t, created.User.ID, body.User.ID)
		assert.NotEmpty(t, body.Token)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		require.Equal(t, http.StatusCreated, doJSON(t, api, http.MethodPost, "/register", authapi.RegisterRequest{
			Email:    "a@x.com",
			Password: "hunter2hunter2",
			Name:     "Ada",
		}, nil).Code)

		wrongPass := doJSON(t, api, http.MethodPost, "/login", authapi.LoginRequest{
			Email:    "a@x.com",
			Password: "wrong-password",
		}, nil)
		unknown := doJSON(t, api, http.MethodPost, "/login", authapi.LoginRequest{
			Email:    "nobody@x.com",
			Password: "hunter2hunter2",
		}, nil)

		require.Equal(t, http.StatusBadRequest, wrongPass.Code)
		require.Equal(t, http.StatusBadRequest, unknown.Code)

		wrongEnv := decodeEnvelope(t, wrongPass)
		unknownEnv := decodeEnvelope(t, unknown)
		require.NotNil(t, wrongEnv.Error)
		require.NotNil(t, unknownEnv.Error)
		assert.Equal(t, "invalid_credentials", wrongEnv.Error.Code)
		assert.Equal(t, wrongEnv.Error, unknownEnv.Error)
	})
}

func TestFederated(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{claims: map[string]auth.Claims{
		"good-assertion": {
			Subject:       "g-123",
			Email:         "b@x.com",
			EmailVerified: true,
		},
	}}

	t.Run("provisions a user on first sign-in", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, verifier)

		rec := doJSON(t, api, http.MethodPost, "/federated", authapi.FederatedRequest{
			ProviderAssertion: "good-assertion",
			Provider:          "google",
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeSession(t, rec)
		assert.Equal(t, "b@x.com", body.User.Email)
		assert.Equal(t, "google", body.User.Provider)
		assert.Equal(t, "b", body.User.DisplayName)
		assert.NotEmpty(t, body.Token)
	})

	t.Run("repeat sign-in resolves the same user", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, verifier)

		req := authapi.FederatedRequest{ProviderAssertion: "good-assertion", Provider: "google"}
		first := decodeSession(t, doJSON(t, api, http.MethodPost, "/federated", req, nil))
		second := decodeSession(t, doJSON(t, api, http.MethodPost, "/federated", req, nil))

		assert.Equal(t, first.User.ID, second.User.ID)
	})

	t.Run("profile hints take precedence", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, verifier)

		rec := doJSON(t, api, http.MethodPost, "/federated", authapi.FederatedRequest{
			ProviderAssertion: "good-assertion",
			Provider:          "google",
			ProfileHints: &authapi.ProfileHints{
				DisplayName: "Bea",
				PhotoURL:    "https://idp.example/b.png",
			},
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeSession(t, rec)
		assert.Equal(t, "Bea", body.User.DisplayName)
		assert.Equal(t, "https://idp.example/b.png", body.User.PhotoURL)
	})

	t.Run("rejected assertion is opaque", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, verifier)

		rec := doJSON(t, api, http.MethodPost, "/federated", authapi.FederatedRequest{
			ProviderAssertion: "forged-assertion",
			Provider:          "google",
		}, nil)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_assertion", env.Error.Code)
	})

	t.Run("verifier outage surfaces as an internal error", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &stubVerifier{err: fmt.Errorf("%w: endpoint down", auth.ErrVerifierUnavailable)})

		rec := doJSON(t, api, http.MethodPost, "/federated", authapi.FederatedRequest{
			ProviderAssertion: "good-assertion",
			Provider:          "google",
		}, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "internal_error", env.Error.Code)
	})
}

func TestCurrentIdentity(t *testing.T) {
	t.Parallel()

	t.Run("returns the token's user", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		created := decodeSession(t, doJSON(t, api, http.MethodPost, "/register", authapi.RegisterRequest{
			Email:    "a@x.com",
			Password: "hunter2hunter2",
			Name:     "Ada",
		}, nil))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+created.Token)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		require.Nil(t, env.Error)

		var body struct {
			User auth.PublicUser `json:"user"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &body))
		assert.Equal(t, created.User.ID, body.User.ID)
		assert.Equal(t, "a@x.com", body.User.Email)
	})

	t.Run("missing and invalid tokens are uniformly unauthorized", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, nil)

		for name, header := range map[string]string{
			"no token":      "",
			"wrong scheme":  "Basic dXNlcjpwYXNz",
			"garbled token": "Bearer not.a.token",
		} {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code, name)
			env := decodeEnvelope(t, rec)
			require.NotNil(t, env.Error, name)
			assert.Equal(t, "unauthorized", env.Error.Code, name)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		t.Parallel()

		store := newMemStorage()
		past := time.Now().Add(-2 * time.Hour)
		expired, err := session.New(session.Config{
			Secret: "test-secret-0123456789",
			TTL:    time.Hour,
			Issuer: "authgate",
		}, session.WithClock(func() time.Time { return past }))
		require.NoError(t, err)

		live, err := session.New(session.Config{
			Secret: "test-secret-0123456789",
			TTL:    time.Hour,
			Issuer: "authgate",
		})
		require.NoError(t, err)

		user := &auth.User{ID: uuid.New(), Email: "a@x.com", Role: auth.RoleUser}
		require.NoError(t, store.CreateUser(context.Background(), user))

		token, _, err := expired.Issue(user)
		require.NoError(t, err)

		svc := authapi.NewService(
			auth.NewPasswordService(store),
			auth.NewFederatedService(store, &stubVerifier{}),
			live,
			store,
		)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		svc.Handle().ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
