package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gitviz/internal/apperror"
)

var userSchema = MustCompileSchema("user", []byte(`{
	"type": "object",
	"required": ["id", "username"],
	"properties": {
		"id": {"type": "integer"},
		"username": {"type": "string"}
	}
}`))

var listSchema = MustCompileSchema("list", []byte(`{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["additions"],
		"properties": {"additions": {"type": "integer", "minimum": 0}}
	}
}`))

type testUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type recordedFetch struct {
	resource string
	outcome  string
}

type fakeObserver struct {
	mu     sync.Mutex
	events []recordedFetch
}

func (o *fakeObserver) ObserveFetch(resource, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, recordedFetch{resource, outcome})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServer returns a fetcher wired to an httptest server running handler.
func newServer(t *testing.T, handler http.HandlerFunc) (*Fetcher, string, *fakeObserver) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	obs := &fakeObserver{}
	return New(srv.Client(), testLogger(), obs), srv.URL, obs
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestGet_DecodesValidBody(t *testing.T) {
	var gotAuth string
	f, url, obs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		respond(http.StatusOK, `{"id": 7, "username": "octo", "extra": true}`)(w, r)
	})

	u, err := Get[testUser](context.Background(), f, url, userSchema, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, testUser{ID: 7, Username: "octo"}, u)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, []recordedFetch{{"user", "ok"}}, obs.events)
}

func TestGet_MissingTokenSendsNothing(t *testing.T) {
	var hits atomic.Int32
	f, url, _ := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	})

	_, err := Get[testUser](context.Background(), f, url, userSchema, "")
	assert.True(t, errors.Is(err, apperror.ErrAuth), "got %v", err)
	assert.Zero(t, hits.Load())
}

func TestGet_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		schema  *Schema
		want    error
		outcome string
	}{
		{"401 is an auth error", respond(http.StatusUnauthorized, ``), userSchema, apperror.ErrAuth, "auth_error"},
		{"403 is an auth error", respond(http.StatusForbidden, `{}`), userSchema, apperror.ErrAuth, "auth_error"},
		{"500 is an unexpected status", respond(http.StatusInternalServerError, `{"id":1,"username":"x"}`), userSchema, apperror.ErrUnexpectedStatus, "unexpected_status"},
		{"404 is an unexpected status", respond(http.StatusNotFound, ``), userSchema, apperror.ErrUnexpectedStatus, "unexpected_status"},
		{"html body is malformed", respond(http.StatusOK, `<html>oops</html>`), userSchema, apperror.ErrMalformedResponse, "malformed_response"},
		{"truncated json is malformed", respond(http.StatusOK, `{"id": 1,`), userSchema, apperror.ErrMalformedResponse, "malformed_response"},
		{"string id violates schema", respond(http.StatusOK, `{"id": "abc", "username": "x"}`), userSchema, apperror.ErrSchemaValidation, "schema_violation"},
		{"missing required field violates schema", respond(http.StatusOK, `{"id": 1}`), userSchema, apperror.ErrSchemaValidation, "schema_violation"},
		{"object instead of array violates schema", respond(http.StatusOK, `{"id": 1}`), listSchema, apperror.ErrSchemaValidation, "schema_violation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, url, obs := newServer(t, tt.handler)

			_, err := Do[any](context.Background(), f, Request{
				Method: http.MethodGet,
				URL:    url,
				Token:  "tok",
				Schema: tt.schema,
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "want %v, got %v", tt.want, err)
			require.Len(t, obs.events, 1)
			assert.Equal(t, tt.outcome, obs.events[0].outcome)
		})
	}
}

func TestGet_SchemaViolationNamesField(t *testing.T) {
	f, url, _ := newServer(t, respond(http.StatusOK, `{"id": "abc", "username": "x"}`))

	_, err := Get[testUser](context.Background(), f, url, userSchema, "tok")

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(err, apperror.ErrSchemaValidation))
	assert.Equal(t, "id", appErr.Field)
}

func TestGet_SchemaViolationInArrayItem(t *testing.T) {
	f, url, _ := newServer(t, respond(http.StatusOK, `[{"additions": 1}, {"additions": -3}]`))

	_, err := Get[[]map[string]int](context.Background(), f, url, listSchema, "tok")

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "1.additions", appErr.Field)
}

func TestGet_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := New(http.DefaultClient, testLogger(), nil)
	_, err := Get[testUser](context.Background(), f, url, userSchema, "tok")
	assert.True(t, errors.Is(err, apperror.ErrNetwork), "got %v", err)
}

func TestGet_NoRetry(t *testing.T) {
	var hits atomic.Int32
	f, url, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		respond(http.StatusBadGateway, ``)(w, r)
	})

	_, err := Get[testUser](context.Background(), f, url, userSchema, "tok")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_AnonymousPostWithBody(t *testing.T) {
	var gotAuth, gotBody, gotType string
	f, url, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		respond(http.StatusOK, `{"id": 1, "username": "x"}`)(w, r)
	})

	_, err := Do[testUser](context.Background(), f, Request{
		Method:    http.MethodPost,
		URL:       url,
		Anonymous: true,
		Body:      map[string]string{"refreshToken": "r-1"},
		Schema:    userSchema,
	})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"refreshToken":"r-1"}`, gotBody)
}

func TestSend_IgnoresBody(t *testing.T) {
	f, url, obs := newServer(t, respond(http.StatusCreated, `not json at all`))

	err := Send(context.Background(), f, Request{
		Method:   http.MethodDelete,
		URL:      url,
		Token:    "tok",
		Resource: "assignment",
	})
	require.NoError(t, err)
	assert.Equal(t, []recordedFetch{{"assignment", "ok"}}, obs.events)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "network_error", Outcome(apperror.Network("u", errors.New("refused"))))
	assert.Equal(t, "error", Outcome(errors.New("other")))
}
