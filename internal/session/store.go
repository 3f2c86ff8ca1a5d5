// Package session owns the client-side session lifecycle: acquiring a
// token pair after the OAuth callback, resolving the signed-in user, renewing
// the access token shortly before it expires, and tearing everything down on
// sign-out.
//
// STATE MACHINE:
//
//	Anonymous ──Acquire──▶ Authenticating ──user fetched──▶ Authenticated
//	    ▲                        │                              │
//	    └──── fetch failed ──────┘                              │
//	    └──── Release / renewal failed ─────────────────────────┘
//
// A Store is an explicit object handed to whoever needs the current token.
// There is no package-level session, so tests never share state.
//
// STALE RESULTS:
// Every transition bumps a generation counter. Work started under one
// generation (an Acquire waiting on the network, a renewal timer, an
// in-flight refresh call) re-checks the counter before applying its result
// and drops it if the session moved on in the meantime.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/auth"
	"github.com/sakif/gitviz/internal/model"
)

// DefaultRenewalSkew is how long before expiry the access token is renewed.
// It absorbs clock drift between the dashboard and the API.
const DefaultRenewalSkew = 30 * time.Second

// DefaultRefreshTimeout bounds a single call to the refresh endpoint.
const DefaultRefreshTimeout = 15 * time.Second

// ErrSuperseded is returned by Acquire when a later Acquire or Release
// replaced the session before the user fetch finished.
var ErrSuperseded = errors.New("session: superseded by a newer sign-in or sign-out")

// State is the lifecycle state of a Store.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UserFetcher resolves the user an access token belongs to.
type UserFetcher interface {
	Me(ctx context.Context, accessToken string) (*model.User, error)
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
}

// Observer receives lifecycle events, typically for metrics.
type Observer interface {
	ObserveTransition(state string)
	ObserveRenewal(outcome string)
}

// Timer is the part of *time.Timer the Store needs.
type Timer interface {
	Stop() bool
}

// Config tunes a Store. The zero value is usable.
type Config struct {
	RenewalSkew    time.Duration
	RefreshTimeout time.Duration

	// Now and AfterFunc default to time.Now and time.AfterFunc. Tests
	// replace them to control when renewal fires.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer

	Observer Observer
}

func (c Config) withDefaults() Config {
	if c.RenewalSkew <= 0 {
		c.RenewalSkew = DefaultRenewalSkew
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return c
}

// Snapshot is an immutable copy of the session at one instant.
// User is nil exactly when AccessToken is empty.
type Snapshot struct {
	State        State
	AccessToken  string
	RefreshToken string
	User         *model.User
	// RenewAt is when the pending renewal fires; zero when none is scheduled.
	RenewAt time.Time
}

// Store holds the current token pair and user and owns the renewal timer.
// It is safe for concurrent use.
type Store struct {
	users     UserFetcher
	refresher Refresher
	logger    *slog.Logger
	cfg       Config

	// pubMu serialises transitions with the notifications they produce so
	// subscribers observe snapshots in order.
	pubMu sync.Mutex

	mu            sync.Mutex
	gen           uint64
	state         State
	accessToken   string
	refreshToken  string
	user          *model.User
	renewAt       time.Time
	timer         Timer
	cancelRefresh context.CancelFunc
	subs          map[int]func(Snapshot)
	nextSub       int
}

// New creates an Anonymous Store.
func New(users UserFetcher, refresher Refresher, logger *slog.Logger, cfg Config) *Store {
	return &Store{
		users:     users,
		refresher: refresher,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		subs:      make(map[int]func(Snapshot)),
	}
}

// Acquire signs in with a fresh token pair.
//
// The store moves to Authenticating and fetches the current user with the
// new access token. On success it stores the pair and user, becomes
// Authenticated and schedules renewal. On failure it returns to Anonymous
// with every field cleared, schedules nothing and returns the error.
//
// If another Acquire or a Release happens while the user fetch is in
// flight, this call's result is discarded and ErrSuperseded is returned.
func (s *Store) Acquire(ctx context.Context, accessToken, refreshToken string) error {
	var g uint64
	s.apply(func() bool {
		s.gen++
		g = s.gen
		s.stopRenewalLocked()
		s.clearLocked()
		s.state = Authenticating
		return true
	})

	if accessToken == "" {
		err := apperror.Auth("session: access token is empty")
		s.fail(g, err)
		return err
	}

	user, err := s.users.Me(ctx, accessToken)

	var superseded bool
	s.apply(func() bool {
		if s.gen != g {
			superseded = true
			return false
		}
		if err != nil {
			s.clearLocked()
			s.state = Anonymous
			return true
		}
		s.accessToken = accessToken
		s.refreshToken = refreshToken
		s.user = user
		s.state = Authenticated
		s.scheduleLocked(g)
		return true
	})

	switch {
	case superseded:
		s.logger.Debug("session: discarding superseded sign-in")
		return ErrSuperseded
	case err != nil:
		s.logger.Warn("session: sign-in failed", slog.String("error", err.Error()))
		return fmt.Errorf("session: fetching current user: %w", err)
	}

	s.logger.Info("session: signed in",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return nil
}

// fail returns generation g to Anonymous if it is still current.
func (s *Store) fail(g uint64, err error) {
	s.apply(func() bool {
		if s.gen != g {
			return false
		}
		s.clearLocked()
		s.state = Anonymous
		return true
	})
	s.logger.Warn("session: sign-in failed", slog.String("error", err.Error()))
}

// Release signs out: it cancels any pending renewal or in-flight refresh,
// clears the token pair and user and returns to Anonymous. Calling it on
// an already anonymous Store does nothing.
func (s *Store) Release() {
	s.apply(func() bool {
		idle := s.state == Anonymous && s.timer == nil && s.cancelRefresh == nil
		s.gen++
		s.stopRenewalLocked()
		s.clearLocked()
		s.state = Anonymous
		return !idle
	})
}

// Close stops background work without changing the observable state or
// notifying subscribers. Used on shutdown, where persisted sessions must
// survive for the next process to restore.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.stopRenewalLocked()
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AccessToken returns the current access token, or "" when not signed in.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// User returns the signed-in user, or nil.
func (s *Store) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive a Snapshot after every transition.
// fn runs synchronously on the goroutine that made the transition. It may
// read the Store but must not call Acquire or Release.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// apply runs fn with the state locked and, if fn reports a change,
// publishes the resulting snapshot to subscribers.
func (s *Store) apply(fn func() (changed bool)) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	changed := fn()
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveTransition(snap.State.String())
	}
	for _, sub := range subs {
		sub(snap)
	}
}

// scheduleLocked arms the renewal timer for generation g from the current
// access token's expiry. A token without a decodable expiry is used as-is
// until the API rejects it.
func (s *Store) scheduleLocked(g uint64) {
	exp, ok, err := auth.ExpiryOf(s.accessToken)
	if err != nil {
		s.logger.Warn("session: access token not decodable, renewal disabled", slog.String("error", err.Error()))
		return
	}
	if !ok {
		s.logger.Warn("session: access token has no expiry, renewal disabled")
		return
	}

	now := s.cfg.Now()
	delay := exp.Sub(now) - s.cfg.RenewalSkew
	if delay < 0 {
		delay = 0
	}

	s.renewAt = now.Add(delay)
	s.timer = s.cfg.AfterFunc(delay, func() { s.renew(g) })

	s.logger.Debug("session: renewal scheduled",
		slog.Time("expiresAt", exp),
		slog.Duration("in", delay),
	)
}

// renew is the timer callback. It exchanges the refresh token and either
// installs the new pair (rescheduling from its expiry) or signs out.
func (s *Store) renew(g uint64) {
	s.mu.Lock()
	if s.gen != g || s.state != Authenticated {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.renewAt = time.Time{}
	refreshToken := s.refreshToken
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout)
	s.cancelRefresh = cancel
	s.mu.Unlock()
	defer cancel()

	pair, err := s.refresher.Refresh(ctx, refreshToken)

	var applied bool
	s.apply(func() bool {
		if s.gen != g {
			return false
		}
		applied = true
		s.cancelRefresh = nil
		if err != nil {
			// A rejected refresh token will not get better by retrying.
			s.gen++
			s.clearLocked()
			s.state = Anonymous
			return true
		}
		s.accessToken = pair.AccessToken
		if pair.RefreshToken != "" {
			s.refreshToken = pair.RefreshToken
		}
		s.scheduleLocked(g)
		return true
	})

	if !applied {
		s.logger.Debug("session: discarding stale renewal result")
		return
	}
	if err != nil {
		s.observeRenewal("failed")
		s.logger.Warn("session: renewal failed, signing out", slog.String("error", err.Error()))
		return
	}
	s.observeRenewal("renewed")
	s.logger.Info("session: access token renewed")
}

func (s *Store) observeRenewal(outcome string) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveRenewal(outcome)
	}
}

func (s *Store) stopRenewalLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancelRefresh != nil {
		s.cancelRefresh()
		s.cancelRefresh = nil
	}
	s.renewAt = time.Time{}
}

func (s *Store) clearLocked() {
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		State:        s.state,
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		User:         s.user,
		RenewAt:      s.renewAt,
	}
}
