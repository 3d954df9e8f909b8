package storage

// actions.go contains SQLiteStore methods for custom action CRUD operations.

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sideassist/sideassist/internal/protocol"
)

const actionColumns = `id, name, icon, shortcut_type, key_sequence, created_at, run_count, last_run_at`

// SaveAction persists a custom action.
// Uses INSERT OR REPLACE to handle both new actions and updates.
func (s *SQLiteStore) SaveAction(action *protocol.CustomAction) error {
	if action == nil {
		return errors.New("action cannot be nil")
	}
	if action.ID == "" {
		return errors.New("action id cannot be empty")
	}

	seq := action.KeySequence
	if seq == nil {
		seq = []protocol.KeyEvent{}
	}
	encoded, err := json.Marshal(seq)
	if err != nil {
		return fmt.Errorf("encode key sequence: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: saving custom action %s (%s, %d keys)", action.ID, action.Name, len(seq))

	const query = `
		INSERT OR REPLACE INTO custom_actions
			(id, name, icon, shortcut_type, key_sequence, created_at, run_count, last_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		action.ID,
		action.Name,
		action.Icon,
		action.ShortcutType,
		string(encoded),
		action.CreatedAt.Format(time.RFC3339Nano),
		action.RunCount,
		formatNullableTime(action.LastRunAt),
	)
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}

	return nil
}

// GetAction retrieves a custom action by ID.
// Returns nil, nil if the action does not exist.
func (s *SQLiteStore) GetAction(id string) (*protocol.CustomAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + actionColumns + ` FROM custom_actions WHERE id = ?`

	action, err := scanAction(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}

	return action, nil
}

// ListActions returns all custom actions, oldest first.
func (s *SQLiteStore) ListActions() ([]protocol.CustomAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + actionColumns + ` FROM custom_actions ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := []protocol.CustomAction{}
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}

	return actions, nil
}

// CountActions returns the number of stored custom actions.
func (s *SQLiteStore) CountActions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM custom_actions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

// RenameAction changes the display name of a custom action.
// Returns ErrActionNotFound if the action does not exist.
func (s *SQLiteStore) RenameAction(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: renaming custom action %s to %q", id, name)

	result, err := s.db.Exec(`UPDATE custom_actions SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename action: %w", err)
	}
	return requireAffected(result)
}

// DeleteAction removes a custom action.
// Returns ErrActionNotFound if the action does not exist.
func (s *SQLiteStore) DeleteAction(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: deleting custom action %s", id)

	result, err := s.db.Exec("DELETE FROM custom_actions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return requireAffected(result)
}

// RecordRun increments the run counter and stamps last_run_at.
// Returns ErrActionNotFound if the action does not exist.
func (s *SQLiteStore) RecordRun(id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `UPDATE custom_actions SET run_count = run_count + 1, last_run_at = ? WHERE id = ?`

	result, err := s.db.Exec(query, t.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrActionNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAction scans a single row into a CustomAction.
func scanAction(row rowScanner) (*protocol.CustomAction, error) {
	var (
		action    protocol.CustomAction
		keySeq    string
		createdAt string
		lastRunAt sql.NullString
	)

	err := row.Scan(
		&action.ID,
		&action.Name,
		&action.Icon,
		&action.ShortcutType,
		&keySeq,
		&createdAt,
		&action.RunCount,
		&lastRunAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keySeq), &action.KeySequence); err != nil {
		return nil, fmt.Errorf("decode key sequence for %s: %w", action.ID, err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	action.CreatedAt = t

	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastRunAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_run_at: %w", err)
		}
		action.LastRunAt = &t
	}

	return &action, nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
