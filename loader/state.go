package loader

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StateStore persists which plugin names were loaded, and whether they were
// critical, across process restarts. This is a Go-port supplement beyond
// spec.md (see SPEC_FULL.md §8): a Loader with no StateStore behaves exactly
// per the original specification. Grounded on the teacher's
// PluginManager.persistState/RestoreState and its plugin_state table.
type StateStore struct {
	db *sql.DB
}

// OpenStateStore opens (creating if necessary) a SQLite-backed state store
// at path and ensures its schema exists.
func OpenStateStore(path string) (*StateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", path, err)
	}
	s := &StateStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *StateStore) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS plugin_state (
		name TEXT PRIMARY KEY,
		critical BOOLEAN NOT NULL DEFAULT 0,
		loaded_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create plugin_state table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Persist records every currently loaded plugin entry, replacing whatever
// was recorded on a prior call.
func (s *StateStore) Persist(entries []*PluginEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM plugin_state`); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear plugin_state: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		if _, err := tx.Exec(
			`INSERT INTO plugin_state (name, critical, loaded_at) VALUES (?, ?, ?)`,
			e.Name, e.Critical, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("persist plugin %q: %w", e.Name, err)
		}
	}
	return tx.Commit()
}

// RestoreList rebuilds a plugin-list string (spec.md §6 format) from the
// last persisted state, in the order the entries were persisted, so a caller
// that doesn't have the original configuration handy (e.g. after a process
// restart) can still call Load.
func (s *StateStore) RestoreList() (string, error) {
	rows, err := s.db.Query(`SELECT name, critical FROM plugin_state ORDER BY rowid`)
	if err != nil {
		return "", fmt.Errorf("query plugin_state: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var name string
		var critical bool
		if err := rows.Scan(&name, &critical); err != nil {
			return "", fmt.Errorf("scan plugin_state row: %w", err)
		}
		if critical {
			name += "!"
		}
		tokens = append(tokens, name)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate plugin_state rows: %w", err)
	}

	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out, nil
}
