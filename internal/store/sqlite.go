package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLiteSink appends events to a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// events table exists. Use ":memory:" for a throwaway database.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serialises writes
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id           TEXT    PRIMARY KEY,
	  kind         TEXT    NOT NULL CHECK (kind IN ('event','identify','vitals','forms')),
	  website      TEXT    NOT NULL,
	  name         TEXT,
	  payload_json TEXT    NOT NULL CHECK (json_valid(payload_json)),
	  received_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_kind    ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_website ON events(website);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Write inserts event.
func (s *SQLiteSink) Write(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, kind, website, name, payload_json, received_at) VALUES(?,?,?,?,json(?),?)`,
		event.ID, event.Kind, event.Website, event.Name, string(event.Payload), event.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Count returns the number of stored events of kind, or of all kinds when
// kind is empty.
func (s *SQLiteSink) Count(ctx context.Context, kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
