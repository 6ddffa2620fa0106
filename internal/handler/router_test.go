package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/config"
	"github.com/socialhub/backend/internal/metrics"
	"github.com/socialhub/backend/internal/revocation"
	"github.com/socialhub/backend/internal/service"
	"github.com/socialhub/backend/internal/usertest"
)

type downRegistry struct{}

func (downRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	return errors.New("dial tcp: connection refused")
}

func (downRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

type testServer struct {
	router  *gin.Engine
	metrics *metrics.Registry
}

func newTestServer(t *testing.T, registry revocation.Registry, mutate func(*config.AuthConfig)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AuthConfig{
		JWTSecret:      "test-secret",
		TokenTTL:       "1h",
		BcryptCost:     "10",
		TokenTransport: "both",
		StorageTimeout: "1s",
		ResetTokenTTL:  "10m",
		VerifyTokenTTL: "24h",
		CookieName:     "token",
		CookiePath:     "/",
		CookieSecure:   "false",
		CookieSameSite: "lax",
		ExposeTokens:   "true",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := service.NewAuthService(usertest.NewRepo(), registry, nil, cfg, zap.NewNop())
	require.NoError(t, err)

	m := metrics.NewRegistry()
	router := NewRouter(config.ServerConfig{AllowedOrigins: []string{"http://app.local"}}, svc, m, zap.NewNop())
	return &testServer{router: router, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerBody() map[string]string {
	return map[string]string{"username": "alice", "email": "alice@example.com", "password": "secret123"}
}

func loginBody() map[string]string {
	return map[string]string{"identifier": "alice@example.com", "password": "secret123"}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret123")
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "password")

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "alice@example.com", user["email"])

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)["token"].(string)
	require.NotEmpty(t, first)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(first))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, bearer(first))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "logged out", decode(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(first))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "message": "not authorized"}, decode(t, rec))

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)["token"].(string)
	assert.NotEqual(t, first, second)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(second))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(first))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out a revoked token again is not an error.
	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, bearer(first))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil).Code)

	unknown := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "ghost@example.com", "password": "secret123"}, nil)
	wrong := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "alice", "password": "nope-nope"}, nil)

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil).Code)

	tests := []struct {
		name    string
		body    map[string]string
		status  int
		message string
	}{
		{"duplicate email", map[string]string{"username": "other", "email": "alice@example.com", "password": "secret123"}, http.StatusConflict, "email already registered"},
		{"duplicate username", map[string]string{"username": "alice", "email": "other@example.com", "password": "secret123"}, http.StatusConflict, "username already taken"},
		{"both taken", registerBody(), http.StatusConflict, "email already registered"},
		{"missing password", map[string]string{"username": "bob", "email": "bob@example.com"}, http.StatusBadRequest, "password: is required"},
		{"short password", map[string]string{"username": "bob", "email": "bob@example.com", "password": "123"}, http.StatusBadRequest, "password: must be at least 6 characters"},
		{"malformed email", map[string]string{"username": "bob", "email": "bob@@example", "password": "secret123"}, http.StatusBadRequest, "email: must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/auth/register", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["message"])
			assert.Equal(t, false, decode(t, rec)["success"])
		})
	}
}

func TestLogoutRequiresToken(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "token required", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, bearer("forged.token.value"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not authorized", decode(t, rec)["message"])
}

func TestMeWithoutToken(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)

	rec := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not authorized", decode(t, rec)["message"])
}

func TestRegistryOutageFailsClosed(t *testing.T) {
	s := newTestServer(t, downRegistry{}, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["token"].(string)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service unavailable", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCookieTransport(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), func(cfg *config.AuthConfig) {
		cfg.TokenTransport = "cookie"
	})

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["token"].(string)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	withCookie := map[string]string{"Cookie": "token=" + token}
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, withCookie).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(token)).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, withCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.Less(t, cleared[0].MaxAge, 0)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, withCookie).Code)
}

func TestBearerTransportSetsNoCookie(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), func(cfg *config.AuthConfig) {
		cfg.TokenTransport = "bearer"
	})

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestProfileAndPassword(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["token"].(string)

	rec = s.do(t, http.MethodPatch, "/api/v1/auth/me", map[string]string{"bio": "hello"}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decode(t, rec)["user"].(map[string]any)["bio"])

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password", map[string]string{"currentPassword": "wrong-one", "newPassword": "newsecret"}, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password", map[string]string{"currentPassword": "secret123", "newPassword": "newsecret"}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "alice", "password": "newsecret"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil).Code)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/password/forgot", map[string]string{"email": "nobody@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, hasToken := decode(t, rec)["token"]
	assert.False(t, hasToken)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password/forgot", map[string]string{"email": "alice@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := decode(t, rec)["token"].(string)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{"token": resetToken, "newPassword": "fresh-pass"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{"token": resetToken, "newPassword": "fresh-pass"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "alice", "password": "fresh-pass"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password/forgot", map[string]string{"email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndDocs(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)

	rec := s.do(t, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", decode(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/api/v1/auth/logout")

	rec = s.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), nil)

	rec := s.do(t, http.MethodOptions, "/api/v1/auth/login", nil, map[string]string{"Origin": "http://app.local"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = s.do(t, http.MethodOptions, "/api/v1/auth/login", nil, map[string]string{"Origin": "http://evil.local"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResetTokensHiddenByDefault(t *testing.T) {
	s := newTestServer(t, revocation.NewMemoryRegistry(), func(c *config.AuthConfig) { c.ExposeTokens = "" })
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", registerBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["token"].(string)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password/forgot", map[string]string{"email": "alice@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, hasToken := decode(t, rec)["token"]
	assert.False(t, hasToken)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/email/verify/request", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	_, hasToken = decode(t, rec)["token"]
	assert.False(t, hasToken)
}
