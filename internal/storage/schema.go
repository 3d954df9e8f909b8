package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the custom_actions table.
func (s *SQLiteStore) migrateToV1() error {
	log.Printf("storage: applying migration to schema version 1")

	// key_sequence holds the captured events as a JSON array.
	// Timestamps are stored as RFC3339Nano strings for readability and portability.
	const actionsTable = `
		CREATE TABLE IF NOT EXISTS custom_actions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT NOT NULL DEFAULT '',
			shortcut_type TEXT NOT NULL DEFAULT 'Normal',
			key_sequence TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_custom_actions_created ON custom_actions(created_at);
	`

	if _, err := s.db.Exec(actionsTable); err != nil {
		return fmt.Errorf("create custom_actions table: %w", err)
	}

	return s.recordMigration(1)
}

// migrateToV2 adds execution bookkeeping so the companion can order
// actions by use.
func (s *SQLiteStore) migrateToV2() error {
	log.Printf("storage: applying migration to schema version 2")

	const alter = `
		ALTER TABLE custom_actions ADD COLUMN run_count INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE custom_actions ADD COLUMN last_run_at TEXT;
	`

	if _, err := s.db.Exec(alter); err != nil {
		return fmt.Errorf("add run columns: %w", err)
	}

	return s.recordMigration(2)
}

func (s *SQLiteStore) recordMigration(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}

// tableExists reports whether a table is present in the database.
func (s *SQLiteStore) tableExists(name string) (bool, error) {
	var table string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return table == name, nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}
