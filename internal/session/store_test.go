package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/auth/authtest"
	"github.com/sakif/gitviz/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUsers resolves every token to the same user unless err is set.
// If gate has an entry for a token, Me blocks until that channel is closed.
type fakeUsers struct {
	mu    sync.Mutex
	user  *model.User
	err   error
	calls []string
	gate  map[string]chan struct{}
}

func (f *fakeUsers) Me(ctx context.Context, accessToken string) (*model.User, error) {
	f.mu.Lock()
	f.calls = append(f.calls, accessToken)
	gate := f.gate[accessToken]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	u := *f.user
	return &u, nil
}

func (f *fakeUsers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRefresher struct {
	mu    sync.Mutex
	pair  model.TokenPair
	err   error
	calls []string
	done  chan struct{}
	once  sync.Once
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	f.mu.Lock()
	f.calls = append(f.calls, refreshToken)
	f.mu.Unlock()
	if f.done != nil {
		defer f.once.Do(func() { close(f.done) })
	}
	if f.err != nil {
		return model.TokenPair{}, f.err
	}
	return f.pair, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeTimer records whether it was stopped.
type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler captures every AfterFunc call instead of running it, so a
// test can assert the delay and fire the callback by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{}
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.funcs)
}

// fire runs the i-th scheduled callback on the test goroutine.
func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	f := s.funcs[i]
	s.mu.Unlock()
	f()
}

var t0 = time.Unix(1700000000, 0)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, users *fakeUsers, refresher *fakeRefresher, skew time.Duration) (*Store, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	s := New(users, refresher, testLogger(), Config{
		RenewalSkew: skew,
		Now:         func() time.Time { return t0 },
		AfterFunc:   sched.AfterFunc,
	})
	return s, sched
}

func octocat() *model.User {
	return &model.User{ID: 42, Username: "octocat", PictureURL: "https://avatars.example.com/42"}
}

// =========================================================================
// ACQUIRE TESTS
// =========================================================================

func TestAcquire_SchedulesRenewalBeforeExpiry(t *testing.T) {
	users := &fakeUsers{user: octocat()}
	s, sched := newTestStore(t, users, &fakeRefresher{}, 30*time.Millisecond)

	access := authtest.Token(t, "42", t0.Add(1000*time.Millisecond), nil)
	require.NoError(t, s.Acquire(context.Background(), access, "refresh-1"))

	snap := s.Snapshot()
	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, access, snap.AccessToken)
	assert.Equal(t, "refresh-1", snap.RefreshToken)
	require.NotNil(t, snap.User)
	assert.Equal(t, "octocat", snap.User.Username)

	require.Equal(t, 1, sched.count())
	assert.Equal(t, 970*time.Millisecond, sched.delays[0])
	assert.Equal(t, t0.Add(970*time.Millisecond), snap.RenewAt)
}

func TestAcquire_ExpiredTokenRenewsImmediately(t *testing.T) {
	users := &fakeUsers{user: octocat()}
	s, sched := newTestStore(t, users, &fakeRefresher{}, 30*time.Second)

	access := authtest.Token(t, "42", t0.Add(10*time.Second), nil)
	require.NoError(t, s.Acquire(context.Background(), access, "r"))

	require.Equal(t, 1, sched.count())
	assert.Equal(t, time.Duration(0), sched.delays[0])
}

func TestAcquire_UserFetchFails(t *testing.T) {
	users := &fakeUsers{err: apperror.Network("http://api/apiV1/user", io.ErrUnexpectedEOF)}
	s, sched := newTestStore(t, users, &fakeRefresher{}, 0)

	err := s.Acquire(context.Background(), authtest.TokenIn(t, "42", time.Hour), "r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNetwork))

	snap := s.Snapshot()
	assert.Equal(t, Anonymous, snap.State)
	assert.Empty(t, snap.AccessToken)
	assert.Empty(t, snap.RefreshToken)
	assert.Nil(t, snap.User)
	assert.Equal(t, 0, sched.count(), "no renewal may be scheduled after a failed sign-in")
}

func TestAcquire_EmptyAccessToken(t *testing.T) {
	users := &fakeUsers{user: octocat()}
	s, _ := newTestStore(t, users, &fakeRefresher{}, 0)

	err := s.Acquire(context.Background(), "", "r")
	assert.True(t, errors.Is(err, apperror.ErrAuth))
	assert.Equal(t, 0, users.callCount(), "no request may be made without a token")
	assert.Equal(t, Anonymous, s.State())
}

func TestAcquire_UndecodableTokenStillSignsIn(t *testing.T) {
	users := &fakeUsers{user: octocat()}
	s, sched := newTestStore(t, users, &fakeRefresher{}, 0)

	require.NoError(t, s.Acquire(context.Background(), "opaque-token", "r"))
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, 0, sched.count())
}

func TestAcquire_SupersededByLaterAcquire(t *testing.T) {
	first := authtest.TokenIn(t, "1", time.Hour)
	second := authtest.TokenIn(t, "2", time.Hour)
	gate := make(chan struct{})
	users := &fakeUsers{user: octocat(), gate: map[string]chan struct{}{first: gate}}
	s, _ := newTestStore(t, users, &fakeRefresher{}, 0)

	errc := make(chan error, 1)
	go func() { errc <- s.Acquire(context.Background(), first, "r1") }()

	// Wait for the first fetch to be in flight before starting the second.
	require.Eventually(t, func() bool { return users.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Acquire(context.Background(), second, "r2"))
	close(gate)

	assert.True(t, errors.Is(<-errc, ErrSuperseded))
	snap := s.Snapshot()
	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, second, snap.AccessToken)
	assert.Equal(t, "r2", snap.RefreshToken)
}

// =========================================================================
// RENEWAL TESTS
// =========================================================================

func TestRenewal_InstallsNewPairWithoutRefetchingUser(t *testing.T) {
	newAccess := authtest.Token(t, "42", t0.Add(2*time.Minute), nil)
	users := &fakeUsers{user: octocat()}
	refresher := &fakeRefresher{pair: model.TokenPair{AccessToken: newAccess, RefreshToken: "refresh-2"}}
	s, sched := newTestStore(t, users, refresher, 30*time.Second)

	require.NoError(t, s.Acquire(context.Background(), authtest.Token(t, "42", t0.Add(time.Minute), nil), "refresh-1"))
	sched.fire(0)

	assert.Equal(t, []string{"refresh-1"}, refresher.calls)
	assert.Equal(t, 1, users.callCount())

	snap := s.Snapshot()
	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, newAccess, snap.AccessToken)
	assert.Equal(t, "refresh-2", snap.RefreshToken)
	assert.Equal(t, "octocat", snap.User.Username)

	require.Equal(t, 2, sched.count(), "renewal must reschedule from the new token")
	assert.Equal(t, 90*time.Second, sched.delays[1])
}

func TestRenewal_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	newAccess := authtest.Token(t, "42", t0.Add(2*time.Minute), nil)
	refresher := &fakeRefresher{pair: model.TokenPair{AccessToken: newAccess}}
	s, sched := newTestStore(t, &fakeUsers{user: octocat()}, refresher, 0)

	require.NoError(t, s.Acquire(context.Background(), authtest.Token(t, "42", t0.Add(time.Minute), nil), "keep-me"))
	sched.fire(0)

	assert.Equal(t, "keep-me", s.Snapshot().RefreshToken)
}

func TestRenewal_FailureSignsOutSilently(t *testing.T) {
	refresher := &fakeRefresher{err: apperror.Auth("refresh token expired")}
	s, sched := newTestStore(t, &fakeUsers{user: octocat()}, refresher, 0)

	var states []State
	s.Subscribe(func(snap Snapshot) { states = append(states, snap.State) })

	require.NoError(t, s.Acquire(context.Background(), authtest.Token(t, "42", t0.Add(time.Minute), nil), "stale"))
	sched.fire(0)

	snap := s.Snapshot()
	assert.Equal(t, Anonymous, snap.State)
	assert.Empty(t, snap.AccessToken)
	assert.Nil(t, snap.User)
	assert.Equal(t, 1, sched.count(), "a failed renewal must not be retried")
	assert.Equal(t, []State{Authenticating, Authenticated, Anonymous}, states)
}

func TestRenewal_StaleTimerIgnoredAfterNewAcquire(t *testing.T) {
	refresher := &fakeRefresher{pair: model.TokenPair{AccessToken: "never-used"}}
	s, sched := newTestStore(t, &fakeUsers{user: octocat()}, refresher, 0)

	require.NoError(t, s.Acquire(context.Background(), authtest.Token(t, "1", t0.Add(time.Minute), nil), "r1"))
	t2 := authtest.Token(t, "2", t0.Add(time.Hour), nil)
	require.NoError(t, s.Acquire(context.Background(), t2, "r2"))

	assert.True(t, sched.timers[0].stopped, "first timer must be stopped by the second Acquire")

	// Even if the old callback still runs, it must not touch the new session.
	sched.fire(0)
	assert.Equal(t, 0, refresher.callCount())
	assert.Equal(t, t2, s.AccessToken())
}

func TestRenewal_RealTimerFires(t *testing.T) {
	done := make(chan struct{})
	newAccess := authtest.TokenIn(t, "42", 3*time.Hour)
	refresher := &fakeRefresher{pair: model.TokenPair{AccessToken: newAccess, RefreshToken: "r2"}, done: done}
	// Skew larger than the remaining lifetime: renewal is due immediately.
	s := New(&fakeUsers{user: octocat()}, refresher, testLogger(), Config{RenewalSkew: time.Hour})
	t.Cleanup(s.Close)

	require.NoError(t, s.Acquire(context.Background(), authtest.TokenIn(t, "42", time.Minute), "r1"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("renewal did not fire")
	}
	assert.Eventually(t, func() bool { return s.AccessToken() == newAccess }, time.Second, time.Millisecond)
}

// =========================================================================
// RELEASE TESTS
// =========================================================================

func TestRelease_CancelsRenewalAndClears(t *testing.T) {
	refresher := &fakeRefresher{}
	s, sched := newTestStore(t, &fakeUsers{user: octocat()}, refresher, 0)

	require.NoError(t, s.Acquire(context.Background(), authtest.Token(t, "42", t0.Add(time.Minute), nil), "r"))
	s.Release()

	assert.True(t, sched.timers[0].stopped)
	snap := s.Snapshot()
	assert.Equal(t, Anonymous, snap.State)
	assert.Empty(t, snap.AccessToken)
	assert.Nil(t, snap.User)
	assert.True(t, snap.RenewAt.IsZero())

	// A callback that raced with Release must not resurrect the session.
	sched.fire(0)
	assert.Equal(t, 0, refresher.callCount())
	assert.Equal(t, Anonymous, s.State())
}

func TestRelease_Idempotent(t *testing.T) {
	s, _ := newTestStore(t, &fakeUsers{user: octocat()}, &fakeRefresher{}, 0)
	require.NoError(t, s.Acquire(context.Background(), authtest.TokenIn(t, "42", time.Hour), "r"))

	published := 0
	s.Subscribe(func(Snapshot) { published++ })

	s.Release()
	s.Release()
	s.Release()

	assert.Equal(t, 1, published)
	assert.Equal(t, Anonymous, s.State())
}

func TestRelease_DuringAuthenticating(t *testing.T) {
	access := authtest.TokenIn(t, "1", time.Hour)
	gate := make(chan struct{})
	users := &fakeUsers{user: octocat(), gate: map[string]chan struct{}{access: gate}}
	s, sched := newTestStore(t, users, &fakeRefresher{}, 0)

	errc := make(chan error, 1)
	go func() { errc <- s.Acquire(context.Background(), access, "r") }()
	require.Eventually(t, func() bool { return s.State() == Authenticating }, time.Second, time.Millisecond)

	s.Release()
	close(gate)

	assert.True(t, errors.Is(<-errc, ErrSuperseded))
	assert.Equal(t, Anonymous, s.State())
	assert.Equal(t, 0, sched.count())
}

// =========================================================================
// SUBSCRIPTION TESTS
// =========================================================================

func TestSubscribe_SnapshotsKeepInvariant(t *testing.T) {
	s, _ := newTestStore(t, &fakeUsers{user: octocat()}, &fakeRefresher{}, 0)

	var snaps []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { snaps = append(snaps, snap) })

	require.NoError(t, s.Acquire(context.Background(), authtest.TokenIn(t, "42", time.Hour), "r"))
	s.Release()
	unsubscribe()
	require.NoError(t, s.Acquire(context.Background(), authtest.TokenIn(t, "42", time.Hour), "r"))

	require.Len(t, snaps, 3)
	assert.Equal(t, []State{Authenticating, Authenticated, Anonymous},
		[]State{snaps[0].State, snaps[1].State, snaps[2].State})
	for _, snap := range snaps {
		assert.Equal(t, snap.User == nil, snap.AccessToken == "", "user must be set exactly when a token is")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous.String())
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "authenticated", Authenticated.String())
}
