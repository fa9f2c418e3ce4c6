package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/botspot/internal/domain/model"
)

// Destination schema. The time column is integer epoch seconds.
const (
	createTableStmt = `CREATE TABLE IF NOT EXISTS bad_users (
	bad_user TEXT NOT NULL,
	time     INTEGER NOT NULL
)`
	insertStmt = `INSERT INTO bad_users (bad_user, time) VALUES (?, ?)`
)

// SQLite appends bad-user rows to a local sqlite database. The destination
// table is created if absent and only ever appended to.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path. An unreachable sink at
// startup is fatal by contract, so errors here should abort the process
// before processing begins.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sink %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, createTableStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bad_users table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Append writes one row.
func (s *SQLite) Append(ctx context.Context, rec model.BadUserRecord) error {
	_, err := s.db.ExecContext(ctx, insertStmt, rec.User, rec.DetectedAt.Unix())
	if err != nil {
		return fmt.Errorf("append bad user %q: %w", rec.User, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
