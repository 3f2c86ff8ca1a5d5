package model

import "time"

// StoredSession is the persisted form of a signed-in browser session.
// Only the token pair is kept; the user is re-fetched on restore so a
// revoked account cannot be resurrected from disk.
type StoredSession struct {
	ID           string
	AccessToken  string
	RefreshToken string
	UserID       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
