// Package repository defines the storage interfaces the rest of the
// application depends on. Implementations live in subpackages.
package repository

import (
	"context"
	"time"

	"github.com/sakif/gitviz/internal/model"
)

// SessionRepository persists signed-in sessions across restarts.
type SessionRepository interface {
	// Save inserts or replaces the session with s.ID.
	Save(ctx context.Context, s *model.StoredSession) error
	// Get returns apperror.ErrNotFound when no session has that ID.
	Get(ctx context.Context, id string) (*model.StoredSession, error)
	// Delete is a no-op for unknown IDs.
	Delete(ctx context.Context, id string) error
	// PurgeBefore deletes sessions last updated before cutoff and reports
	// how many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
