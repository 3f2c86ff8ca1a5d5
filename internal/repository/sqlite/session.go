package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/model"
	"github.com/sakif/gitviz/internal/repository"
)

// compile-time check that *DB implements repository.SessionRepository
var _ repository.SessionRepository = (*DB)(nil)

// Save inserts a session or replaces its tokens and user.
//
// ON CONFLICT keeps the original created_at, which a plain INSERT OR
// REPLACE would overwrite.
func (db *DB) Save(ctx context.Context, s *model.StoredSession) error {
	access, err := db.sealer.Seal(s.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing access token: %w", err)
	}
	refresh, err := db.sealer.Seal(s.RefreshToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing refresh token: %w", err)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, access_token, refresh_token, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_id       = excluded.user_id,
			updated_at    = excluded.updated_at`,
		s.ID,
		access,
		refresh,
		s.UserID,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving session %s: %w", s.ID, err)
	}
	return nil
}

// Get loads and unseals a session.
// Returns apperror.ErrNotFound if no session exists with that ID.
func (db *DB) Get(ctx context.Context, id string) (*model.StoredSession, error) {
	var (
		s       model.StoredSession
		access  string
		refresh string
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, access_token, refresh_token, user_id, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(
		&s.ID,
		&access,
		&refresh,
		&s.UserID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	if s.AccessToken, err = db.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("sqlite: opening access token of session %s: %w", id, err)
	}
	if s.RefreshToken, err = db.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("sqlite: opening refresh token of session %s: %w", id, err)
	}

	return &s, nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	return nil
}

// PurgeBefore removes sessions untouched since cutoff.
func (db *DB) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting purged sessions: %w", err)
	}
	return n, nil
}
