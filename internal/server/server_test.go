package server_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gitviz/internal/auth/authtest"
	"github.com/sakif/gitviz/internal/config"
	"github.com/sakif/gitviz/internal/middleware"
	"github.com/sakif/gitviz/internal/server"
)

// fakeAnalyser accepts exactly one bearer token until it is revoked.
type fakeAnalyser struct {
	mu        sync.Mutex
	token     string
	userCalls atomic.Int32
}

func (f *fakeAnalyser) revoke() {
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
}

func (f *fakeAnalyser) accepts(header string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token != "" && header == "Bearer "+f.token
}

func (f *fakeAnalyser) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.accepts(r.Header.Get("Authorization")) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/apiV1/user":
		f.userCalls.Add(1)
		_, _ = io.WriteString(w, `{"id":7,"username":"octocat","pictureUrl":"https://example.com/o.png"}`)
	case "/apiV1/repository":
		_, _ = io.WriteString(w, `[{"id":1,"name":"gitviz","url":"https://example.com/gitviz.git"}]`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testConfig(t *testing.T, apiURL, dbPath string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		API:    config.APIConfig{BaseURL: apiURL, Timeout: 5 * time.Second},
		Session: config.SessionConfig{
			RenewalSkew: 30 * time.Second,
			DBPath:      dbPath,
			Secret:      "server-test-secret-value",
			MaxAge:      time.Hour,
		},
		Log: config.LogConfig{Level: "error"},
	}
}

func newServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := server.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.Handler()
}

func call(h http.Handler, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signIn(t *testing.T, h http.Handler, access string) *http.Cookie {
	t.Helper()
	rr := call(h, http.MethodPost, "/api/session", `{"fragment":"accessToken=`+access+`&refreshToken=r1"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestServer_SignInFlow(t *testing.T) {
	access := authtest.TokenIn(t, "7", time.Hour)
	backend := &fakeAnalyser{token: access}
	api := httptest.NewServer(backend)
	defer api.Close()

	h := newServer(t, testConfig(t, api.URL, ":memory:"))

	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/me", "", nil).Code)

	cookie := signIn(t, h, access)

	rr := call(h, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"username":"octocat"`)

	rr = call(h, http.MethodGet, "/api/repositories", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"id":1,"name":"gitviz","url":"https://example.com/gitviz.git"}]`, rr.Body.String())

	metrics := call(h, http.MethodGet, "/metrics", "", nil).Body.String()
	assert.Contains(t, metrics, "gitviz_api_fetches_total")
	assert.Contains(t, metrics, "gitviz_session_active 1")
	assert.Contains(t, metrics, `route="/api/repositories"`)

	assert.Equal(t, http.StatusOK, call(h, http.MethodDelete, "/api/session", "", cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/me", "", cookie).Code)
}

func TestServer_RejectedTokenDoesNotSignIn(t *testing.T) {
	api := httptest.NewServer(&fakeAnalyser{token: "something-else"})
	defer api.Close()

	h := newServer(t, testConfig(t, api.URL, ":memory:"))

	rr := call(h, http.MethodPost, "/api/session", `{"fragment":"accessToken=nope&refreshToken=r1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestServer_SessionSurvivesRestart(t *testing.T) {
	access := authtest.TokenIn(t, "7", time.Hour)
	backend := &fakeAnalyser{token: access}
	api := httptest.NewServer(backend)
	defer api.Close()

	cfg := testConfig(t, api.URL, filepath.Join(t.TempDir(), "sessions.db"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first, err := server.New(cfg, logger)
	require.NoError(t, err)
	cookie := signIn(t, first.Handler(), access)
	require.NoError(t, first.Close())

	second := newServer(t, cfg)
	rr := call(second, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int32(2), backend.userCalls.Load(), "restore re-fetches the user")
}

func TestServer_RevokedTokenEndsSession(t *testing.T) {
	access := authtest.TokenIn(t, "7", time.Hour)
	backend := &fakeAnalyser{token: access}
	api := httptest.NewServer(backend)
	defer api.Close()

	h := newServer(t, testConfig(t, api.URL, ":memory:"))
	cookie := signIn(t, h, access)

	rr := call(h, http.MethodGet, "/auth/github/login", "", cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code, "signed in: straight to the dashboard")

	backend.revoke()

	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/repositories", "", cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/me", "", cookie).Code)

	rr = call(h, http.MethodGet, "/auth/github/login", "", cookie)
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Equal(t, api.URL+"/oauth2/authorization/github", rr.Header().Get("Location"))
}

func TestServer_LoginRedirect(t *testing.T) {
	h := newServer(t, testConfig(t, "https://api.example.com", ":memory:"))

	rr := call(h, http.MethodGet, "/auth/gitlab/login", "", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Equal(t, "https://api.example.com/oauth2/authorization/gitlab", rr.Header().Get("Location"))
}
