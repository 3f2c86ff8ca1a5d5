package session

import "context"

// contextKey is unexported so only this package can set or read the
// session stored in a request context.
type contextKey struct{}

type scoped struct {
	id    string
	store *Store
}

// WithStore returns a copy of ctx carrying the session id and its Store.
func WithStore(ctx context.Context, id string, store *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, scoped{id: id, store: store})
}

// FromContext returns the Store put there by WithStore.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(contextKey{}).(scoped)
	if !ok || s.store == nil {
		return nil, false
	}
	return s.store, true
}

// IDFromContext returns the session id put there by WithStore.
func IDFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(contextKey{}).(scoped)
	return s.id, ok && s.id != ""
}

// TokenFromContext returns the current access token, or "" when the
// request carries no signed-in session.
func TokenFromContext(ctx context.Context) string {
	store, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return store.AccessToken()
}
