package history

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens dbPath, creating the schema if needed. ":memory:"
// gives a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "open sqlite database").
			WithContext("path", dbPath).
			Build()
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "initialize history schema").
			WithContext("path", dbPath).
			Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		stdout TEXT NOT NULL,
		stderr TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_target ON builds(target);
	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores r. Records without an ID are rejected.
func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	if r.ID == "" {
		return ferrors.ValidationError("history record needs an id").WithContext("target", r.Target).Build()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (id, target, status, exit_code, stdout, stderr, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.Target, r.Status, r.ExitCode, r.Stdout, r.Stderr, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHistory, "insert build record").
			WithContext("build_id", r.ID).
			Build()
	}
	return nil
}

// Recent returns the newest records first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx,
		"SELECT id, target, status, exit_code, stdout, stderr, started_at, duration_ms FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limitOrAll(limit))
}

// ByTarget returns the newest records for target first.
func (s *SQLiteStore) ByTarget(ctx context.Context, target string, limit int) ([]Record, error) {
	return s.query(ctx,
		"SELECT id, target, status, exit_code, stdout, stderr, started_at, duration_ms FROM builds WHERE target = ? ORDER BY started_at DESC, rowid DESC LIMIT ?",
		target, limitOrAll(limit))
}

// PruneBefore deletes records that started before cutoff.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM builds WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryHistory, "prune build records").Build()
	}
	return res.RowsAffected()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "query build records").Build()
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r          Record
			startedMS  int64
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.Target, &r.Status, &r.ExitCode, &r.Stdout, &r.Stderr, &startedMS, &durationMS); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "scan build record").Build()
		}
		r.StartedAt = time.UnixMilli(startedMS)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "iterate build records").Build()
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
