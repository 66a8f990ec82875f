// Package history persists the model's change feed to SQLite so past
// values of any path can be queried.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reflow-dev/reflow/pkg/reflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS changes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changes_path ON changes(path);
CREATE INDEX IF NOT EXISTS idx_changes_recorded_at ON changes(recorded_at);
`

// Entry is one persisted change.
type Entry struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Old        any       `json:"old"`
	New        any       `json:"new"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store provides SQLite persistence for model changes.
type Store struct {
	db *sql.DB
}

// Open creates a Store backed by the database at dbPath. Use
// ":memory:" for tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends one change to the journal. Values are stored as JSON;
// values that do not marshal are stored as null.
func (s *Store) Record(c reflow.Change) error {
	oldJSON := marshalOrNull(c.Old)
	newJSON := marshalOrNull(c.New)

	_, err := s.db.Exec(
		"INSERT INTO changes (path, old_value, new_value, recorded_at) VALUES (?, ?, ?, ?)",
		c.Path, oldJSON, newJSON, c.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: record change: %w", err)
	}
	return nil
}

// ByPath returns the most recent changes for a path, newest first,
// capped at limit (or 100 when limit <= 0).
func (s *Store) ByPath(path string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		"SELECT id, path, old_value, new_value, recorded_at FROM changes WHERE path = ? ORDER BY id DESC LIMIT ?",
		path, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query by path: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Since returns all changes recorded at or after t, oldest first.
func (s *Store) Since(t time.Time) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT id, path, old_value, new_value, recorded_at FROM changes WHERE recorded_at >= ? ORDER BY id ASC",
		t.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("history: query since: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of recorded changes.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM changes").Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			oldJSON  sql.NullString
			newJSON  sql.NullString
			recorded time.Time
		)
		if err := rows.Scan(&e.ID, &e.Path, &oldJSON, &newJSON, &recorded); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Old = unmarshalOrNil(oldJSON)
		e.New = unmarshalOrNil(newJSON)
		e.RecordedAt = recorded
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalOrNull(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func unmarshalOrNil(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil
	}
	return v
}
