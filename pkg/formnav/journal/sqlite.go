package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists the journal to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	form_id        TEXT    NOT NULL,
	seq            INTEGER NOT NULL,
	event_id       TEXT    NOT NULL UNIQUE,
	type           TEXT    NOT NULL,
	correlation_id TEXT    NOT NULL,
	causation_id   TEXT    NOT NULL DEFAULT '',
	timestamp      TEXT    NOT NULL,
	envelope       BLOB    NOT NULL,
	PRIMARY KEY (form_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_journal_correlation ON journal_entries(correlation_id);
`

// NewSQLiteStore opens (creating if needed) a journal database.
// The path should be a file path (e.g., "./journal.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, entry Entry) (int64, error) {
	if err := entry.validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM journal_entries WHERE event_id = ?`, entry.EventID).Scan(&exists)
	switch {
	case err == nil:
		return 0, ErrDuplicate
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("check duplicate: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM journal_entries WHERE form_id = ?`,
		entry.FormID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries
			(form_id, seq, event_id, type, correlation_id, causation_id, timestamp, envelope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.FormID, seq, entry.EventID, entry.Type, entry.CorrelationID, entry.CausationID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano), []byte(entry.Envelope)); err != nil {
		return 0, fmt.Errorf("append entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

const selectColumns = `form_id, seq, event_id, type, correlation_id, causation_id, timestamp, envelope`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var timestamp string
	var envelope []byte
	if err := row.Scan(&e.FormID, &e.Seq, &e.EventID, &e.Type, &e.CorrelationID,
		&e.CausationID, &timestamp, &envelope); err != nil {
		return Entry{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s/%d timestamp: %w", e.FormID, e.Seq, err)
	}
	e.Timestamp = ts
	e.Envelope = envelope
	return e, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, formID string, seq int64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM journal_entries WHERE form_id = ? AND seq = ?`,
		formID, seq))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load entry: %w", err)
	}
	return e, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, formID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM journal_entries WHERE form_id = ? ORDER BY seq`, formID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Forms implements Store.
func (s *SQLiteStore) Forms(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT form_id FROM journal_entries ORDER BY form_id`)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan form id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return ids, nil
}

// DeleteForm implements Store.
func (s *SQLiteStore) DeleteForm(ctx context.Context, formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM journal_entries WHERE form_id = ?`, formID); err != nil {
		return fmt.Errorf("delete form entries: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
