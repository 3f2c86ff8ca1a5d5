package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/auth"
	"github.com/sakif/gitviz/internal/model"
	"github.com/sakif/gitviz/internal/repository"
)

// Manager owns one Store per browser session.
//
// LIFECYCLE:
//
//	Create ──▶ Store.Acquire ──ok──▶ registered + saved
//	Get(id) ──known──▶ Store
//	        ──unknown──▶ restore from repository (refresh first if the
//	                     stored access token already expired) ──▶ registered
//	Store goes Anonymous (Release, renewal failure) ──▶ unregistered + deleted
//
// Persistence is driven by Store subscriptions: every Authenticated
// snapshot is saved, so renewed tokens survive a restart.
type Manager struct {
	users     UserFetcher
	refresher Refresher
	repo      repository.SessionRepository
	logger    *slog.Logger
	cfg       Config

	restores singleflight.Group

	mu     sync.Mutex
	stores map[string]*managed
}

type managed struct {
	store       *Store
	unsubscribe func()
}

// NewManager creates a Manager. repo may be nil, in which case sessions
// live only as long as the process.
func NewManager(users UserFetcher, refresher Refresher, repo repository.SessionRepository, logger *slog.Logger, cfg Config) *Manager {
	return &Manager{
		users:     users,
		refresher: refresher,
		repo:      repo,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		stores:    make(map[string]*managed),
	}
}

// Create signs in with pair under a new session ID.
func (m *Manager) Create(ctx context.Context, pair model.TokenPair) (string, *Store, error) {
	id := xid.New().String()
	mg := m.newManaged(id)

	if err := mg.store.Acquire(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		m.discard(mg)
		return "", nil, err
	}

	m.adopt(id, mg)
	m.logger.Info("session: created", slog.String("sessionID", id))
	return id, mg.store, nil
}

// Get returns the Store for id, restoring it from the repository when this
// process has not seen it yet. Unknown IDs yield apperror.ErrNotFound;
// sessions that can no longer be signed in yield apperror.ErrAuth.
func (m *Manager) Get(ctx context.Context, id string) (*Store, error) {
	if id == "" {
		return nil, apperror.NotFound("session", id)
	}

	if store, ok := m.lookup(id); ok {
		return store, nil
	}
	if m.repo == nil {
		return nil, apperror.NotFound("session", id)
	}

	// Concurrent requests for the same unknown ID share one restore.
	v, err, _ := m.restores.Do(id, func() (any, error) {
		if store, ok := m.lookup(id); ok {
			return store, nil
		}
		return m.restore(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// lookup returns a live Store. A registered Store that has since gone
// Anonymous is dropped.
func (m *Manager) lookup(id string) (*Store, bool) {
	m.mu.Lock()
	mg, ok := m.stores[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if mg.store.State() == Anonymous {
		m.unregister(id, mg)
		return nil, false
	}
	return mg.store, true
}

func (m *Manager) restore(ctx context.Context, id string) (*Store, error) {
	// The restore outlives any single caller's cancellation since its
	// result is shared.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*m.cfg.RefreshTimeout)
	defer cancel()

	stored, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	access, refresh := stored.AccessToken, stored.RefreshToken
	if m.expired(access) {
		pair, err := m.refresher.Refresh(ctx, refresh)
		if err != nil {
			m.forget(ctx, id)
			return nil, fmt.Errorf("session: renewing stored session: %w", errors.Join(apperror.Auth("stored session expired"), err))
		}
		access = pair.AccessToken
		if pair.RefreshToken != "" {
			refresh = pair.RefreshToken
		}
	}

	mg := m.newManaged(id)
	if err := mg.store.Acquire(ctx, access, refresh); err != nil {
		m.discard(mg)
		if errors.Is(err, apperror.ErrAuth) {
			m.forget(ctx, id)
		}
		return nil, err
	}

	m.adopt(id, mg)
	m.logger.Info("session: restored", slog.String("sessionID", id))
	return mg.store, nil
}

func (m *Manager) expired(accessToken string) bool {
	exp, ok, err := auth.ExpiryOf(accessToken)
	if err != nil || !ok {
		return false
	}
	return !exp.After(m.cfg.Now())
}

// Destroy signs the session out and removes every trace of it.
// Unknown IDs are ignored.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	mg, ok := m.stores[id]
	m.mu.Unlock()

	if ok {
		mg.store.Release()
		m.unregister(id, mg)
	}
	if m.repo == nil {
		return nil
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: deleting %s: %w", id, err)
	}
	m.logger.Info("session: destroyed", slog.String("sessionID", id))
	return nil
}

// Purge deletes persisted sessions idle for longer than maxAge.
func (m *Manager) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	if m.repo == nil {
		return 0, nil
	}
	n, err := m.repo.PurgeBefore(ctx, m.cfg.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("session: purging: %w", err)
	}
	if n > 0 {
		m.logger.Info("session: purged idle sessions", slog.Int64("count", n))
	}
	return n, nil
}

// Active reports how many sessions this process currently holds.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Close stops every Store's timers. Persisted sessions are kept so the
// next process can restore them.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.stores
	m.stores = make(map[string]*managed)
	m.mu.Unlock()

	for _, mg := range all {
		mg.unsubscribe()
		mg.store.Close()
	}
}

func (m *Manager) newManaged(id string) *managed {
	store := New(m.users, m.refresher, m.logger.With(slog.String("sessionID", id)), m.cfg)
	mg := &managed{store: store}
	mg.unsubscribe = store.Subscribe(m.persist(id, mg))
	return mg
}

func (m *Manager) adopt(id string, mg *managed) {
	m.mu.Lock()
	m.stores[id] = mg
	m.mu.Unlock()
}

// discard drops the persistence subscription and stops the Store's timers.
func (m *Manager) discard(mg *managed) {
	mg.unsubscribe()
	mg.store.Close()
}

// unregister removes mg if it is still the Store registered under id and
// tears it down.
func (m *Manager) unregister(id string, mg *managed) bool {
	m.mu.Lock()
	cur, ok := m.stores[id]
	registered := ok && cur == mg
	if registered {
		delete(m.stores, id)
	}
	m.mu.Unlock()

	if registered {
		m.discard(mg)
	}
	return registered
}

// persist returns the subscriber that mirrors a Store into the repository.
// It runs on the Store's transition path, so it must not call back into
// the Store's mutating methods.
func (m *Manager) persist(id string, mg *managed) func(Snapshot) {
	return func(snap Snapshot) {
		switch snap.State {
		case Authenticated:
			if m.repo == nil || snap.User == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
			defer cancel()
			err := m.repo.Save(ctx, &model.StoredSession{
				ID:           id,
				AccessToken:  snap.AccessToken,
				RefreshToken: snap.RefreshToken,
				UserID:       snap.User.ID,
			})
			if err != nil {
				m.logger.Error("session: persisting failed",
					slog.String("sessionID", id),
					slog.String("error", err.Error()),
				)
			}
		case Anonymous:
			// Safe here: unsubscribe and Close only take the Store's state
			// lock, which is not held while subscribers run.
			if m.unregister(id, mg) {
				m.forget(context.Background(), id)
			}
		}
	}
}

// forget deletes the persisted copy of a session, logging failures.
func (m *Manager) forget(ctx context.Context, id string) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		m.logger.Error("session: deleting persisted session failed",
			slog.String("sessionID", id),
			slog.String("error", err.Error()),
		)
	}
}
