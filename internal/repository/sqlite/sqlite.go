// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The dashboard persists nothing but its own sessions: a handful of rows
// per signed-in browser. An embedded database keeps the deployment a single
// binary plus one file, and ":memory:" gives every test a fresh store.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C toolchain
// is needed to build or cross-compile.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/gitviz/internal/auth"
)

// memoryDSN is the special path for a private in-memory database.
const memoryDSN = ":memory:"

// DB wraps a sql.DB connection pool and provides repository methods.
// Token columns are sealed with sealer before they reach the database.
type DB struct {
	conn   *sql.DB
	sealer *auth.Sealer
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/gitviz.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests; lost on close)
func New(dbPath string, sealer *auth.Sealer) (*DB, error) {
	if sealer == nil {
		return nil, fmt.Errorf("sqlite: a token sealer is required")
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so pin the pool to one connection.
	if dbPath == memoryDSN {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets request handlers read sessions while a renewal writes one.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, sealer: sealer}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
// CREATE ... IF NOT EXISTS keeps every statement safe to re-run.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			user_id       INTEGER NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	// Sessions are keyed per browser, but lookups by user help sign a user
	// out everywhere.
	if err := db.addIndexIfNotExists("idx_sessions_user_id", "sessions", "user_id"); err != nil {
		return fmt.Errorf("creating sessions user_id index: %w", err)
	}

	return nil
}

// addIndexIfNotExists creates a single-column index unless one with that
// name already exists.
func (db *DB) addIndexIfNotExists(name, table, column string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`,
		name,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking index %s: %w", name, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(`CREATE INDEX %s ON %s(%s)`, name, table, column))
	return err
}
