package handler

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/gitviz/internal/auth"
	"github.com/sakif/gitviz/internal/middleware"
	"github.com/sakif/gitviz/internal/model"
	"github.com/sakif/gitviz/internal/session"
)

//go:embed static/login.html
var loginPage []byte

// Sessions is the part of session.Manager the handler needs.
type Sessions interface {
	Create(ctx context.Context, pair model.TokenPair) (string, *session.Store, error)
	Destroy(ctx context.Context, id string) error
}

// SessionHandler runs the sign-in and sign-out flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleProviderLogin → redirect the browser to the API's OAuth entry point
//   - HandleLoginPage     → serve the page the API redirects back to
//   - HandleCreate        → turn the callback fragment into a session cookie
//   - HandleDestroy       → sign out and clear the cookie
//
// The browser only ever holds the opaque session ID. The token pair lives
// in the session Store on the server.
type SessionHandler struct {
	sessions     Sessions
	apiBase      string
	cookieMaxAge time.Duration
	secure       bool
	logger       *slog.Logger
}

// NewSessionHandler creates a SessionHandler. cookieMaxAge should match the
// session purge age so the cookie and the stored session expire together.
func NewSessionHandler(sessions Sessions, apiBase string, cookieMaxAge time.Duration, secure bool, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		apiBase:      apiBase,
		cookieMaxAge: cookieMaxAge,
		secure:       secure,
		logger:       logger,
	}
}

// HandleProviderLogin redirects to the analyser's OAuth authorization URL.
//
// HTTP: GET /auth/{provider}/login
//
// The API runs the code exchange and redirects back to /login with the
// token pair in the URL fragment.
func (h *SessionHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}

	// Mounted behind OptionalSession: a browser that is already signed in
	// goes straight to the dashboard.
	if store, ok := session.FromContext(r.Context()); ok && store.State() == session.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	target, err := auth.LoginURL(h.apiBase, provider)
	if err != nil {
		h.logger.Error("building login URL failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// HandleLoginPage serves the OAuth landing page.
//
// HTTP: GET /login
//
// The fragment is invisible to the server, so the page reads it with
// script, scrubs it from history and posts it to POST /api/session.
func (h *SessionHandler) HandleLoginPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(loginPage)
}

type createSessionRequest struct {
	Fragment string `json:"fragment"`
}

// HandleCreate signs in with the token pair from the login fragment.
//
// HTTP: POST /api/session
// REQUEST BODY: {"fragment": "accessToken=...&refreshToken=..."}
//
// FLOW:
//  1. Parse the fragment into a token pair
//  2. Create a session; the Store fetches the user with the new token
//  3. Set the HttpOnly session cookie and return the user
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	pair, err := auth.ParseFragment(req.Fragment)
	if err != nil {
		writeError(w, err)
		return
	}

	id, store, err := h.sessions.Create(r.Context(), pair)
	if err != nil {
		h.logger.Warn("sign-in failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.setCookie(w, id, int(h.cookieMaxAge.Seconds()))
	writeJSON(w, http.StatusCreated, store.User())
}

// HandleDestroy signs out.
//
// HTTP: DELETE /api/session
//
// Signing out without a session is not an error: the cookie is cleared
// either way.
func (h *SessionHandler) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.Error("destroying session failed", slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
	}

	h.setCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// setCookie writes the session cookie. A negative maxAge deletes it.
func (h *SessionHandler) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
