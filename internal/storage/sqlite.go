// Package storage persists custom actions in SQLite. Recording sessions and
// credentials are deliberately memory-only and never reach this package.
package storage

import (
	"errors"
	"log"
	"sync"

	"database/sql"

	apperrors "github.com/sideassist/sideassist/internal/errors"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is pure Go, so no CGO is needed.
	_ "modernc.org/sqlite"
)

// ErrActionNotFound is returned when an operation targets a non-existent custom action.
var ErrActionNotFound = errors.New("custom action not found")

// SQLiteStore persists custom actions in SQLite.
// It creates the database and tables on first use and supports
// concurrent access through internal locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations for thread safety.
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// busy_timeout covers the CLI and a running host touching the file at once.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "open database", err)
	}

	// An in-memory database exists per connection; pin it to one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "ping database "+path, err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "init schema", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
