// Package history persists a record of every recording session in a
// local SQLite database for the sessions listing and post-hoc
// troubleshooting.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reel/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Session statuses.
const (
	StatusRecording = "recording"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry is one recorded session.
type Entry struct {
	ID         int64
	SessionID  string
	Project    string
	Profile    string
	SessionDir string
	Status     string
	Artifacts  int
	Bytes      int64
	Duration   time.Duration
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store manages session history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "history.db"))
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Begin records a session that has just started.
func (s *Store) Begin(ctx context.Context, sessionID, project, profile, sessionDir string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, project, profile, session_dir, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, project, profile, sessionDir, StatusRecording,
		startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Complete marks a session finished with its artifact summary.
func (s *Store) Complete(ctx context.Context, sessionID string, artifacts int, bytes int64, duration time.Duration) error {
	return s.finish(ctx, sessionID, StatusCompleted, artifacts, bytes, duration, "")
}

// Fail marks a session failed with the error that ended it.
func (s *Store) Fail(ctx context.Context, sessionID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.finish(ctx, sessionID, StatusFailed, 0, 0, 0, message)
}

func (s *Store) finish(ctx context.Context, sessionID, status string, artifacts int, bytes int64, duration time.Duration, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
         SET status = ?, artifacts = ?, bytes = ?, duration_seconds = ?, error = ?, finished_at = ?
         WHERE session_id = ?`,
		status, artifacts, bytes, duration.Seconds(), nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("history: unknown session %s", sessionID)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, project, profile, session_dir, status,
                artifacts, bytes, duration_seconds, COALESCE(error, ''),
                started_at, COALESCE(finished_at, '')
         FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForProject returns the sessions of one project, newest first.
func (s *Store) ForProject(ctx context.Context, project string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, project, profile, session_dir, status,
                artifacts, bytes, duration_seconds, COALESCE(error, ''),
                started_at, COALESCE(finished_at, '')
         FROM sessions WHERE project = ? ORDER BY started_at DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions for %s: %w", project, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var durationSeconds float64
		var startedAt, finishedAt string
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Project, &entry.Profile,
			&entry.SessionDir, &entry.Status, &entry.Artifacts, &entry.Bytes,
			&durationSeconds, &entry.Error, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		entry.Duration = time.Duration(durationSeconds * float64(time.Second))
		if parsed, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			entry.StartedAt = parsed
		}
		if finishedAt != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
				entry.FinishedAt = parsed
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return entries, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
