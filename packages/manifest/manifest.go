// Package manifest keeps a SQLite record of every generated screenshot so
// documentation maintainers can audit when each image was last
// regenerated and from which fixture.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS screenshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	integration TEXT NOT NULL,
	fixture     TEXT NOT NULL,
	message_id  INTEGER NOT NULL,
	image_path  TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_screenshots_integration ON screenshots(integration);
`

// Entry is one recorded screenshot attempt.
type Entry struct {
	RunID       string
	Integration string
	Fixture     string
	MessageID   int64
	ImagePath   string
	Status      string
	CreatedAt   time.Time
}

// Statuses recorded per entry.
const (
	StatusCaptured = "captured"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// Store is a manifest database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the manifest database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to manifest database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create manifest schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRunID returns a fresh identifier shared by all entries of one
// invocation.
func NewRunID() string {
	return uuid.NewString()
}

// Record appends one entry. A zero CreatedAt is stamped with now.
func (s *Store) Record(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO screenshots (run_id, integration, fixture, message_id, image_path, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Integration, e.Fixture, e.MessageID, e.ImagePath, e.Status, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record manifest entry: %w", err)
	}
	return nil
}

// History returns the recorded entries for an integration, newest first.
func (s *Store) History(integration string) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, integration, fixture, message_id, image_path, status, created_at
		 FROM screenshots WHERE integration = ? ORDER BY created_at DESC, id DESC`,
		integration,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Integration, &e.Fixture, &e.MessageID, &e.ImagePath, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan manifest row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest row iteration error: %w", err)
	}

	return entries, nil
}
