package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/session"
)

// SessionCookie is the HttpOnly cookie holding the opaque session ID.
// Tokens never reach the browser after the login page hands them over.
const SessionCookie = "gitviz_session"

// SessionLookup resolves a session ID to its Store.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*session.Store, error)
}

// RequireSession enforces a signed-in session on protected routes.
//
// It reads the session cookie, resolves the Store (restoring it from disk
// if needed) and puts it in the request context. A missing, unknown or
// signed-out session gets 401 and stops the chain.
func RequireSession(sessions SessionLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, store, err := resolve(r, sessions)
			if err != nil || store.State() != session.Authenticated {
				if err != nil && !errors.Is(err, apperror.ErrNotFound) && !errors.Is(err, apperror.ErrAuth) {
					logger.Warn("session lookup failed", slog.String("error", err.Error()))
				}
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithStore(r.Context(), id, store)))
		})
	}
}

// OptionalSession attaches the session when one is present but never
// blocks the request. Handlers check session.FromContext.
func OptionalSession(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, store, err := resolve(r, sessions); err == nil {
				r = r.WithContext(session.WithStore(r.Context(), id, store))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolve(r *http.Request, sessions SessionLookup) (string, *session.Store, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", nil, apperror.NotFound("session", "")
	}
	store, err := sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		return "", nil, err
	}
	return cookie.Value, store, nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"sign in required"}` + "\n"))
}
