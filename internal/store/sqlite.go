package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jwm4/ambient-runner/internal/domain"
	"github.com/jwm4/ambient-runner/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS threads (
		thread_id TEXT PRIMARY KEY,
		session_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		parent_run_id TEXT,
		status TEXT NOT NULL,
		error TEXT,
		result_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_thread ON runs(thread_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const writeRetries = 3

// execWithRetry retries writes that hit SQLite concurrency errors, which
// WAL mode does not fully eliminate.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		res, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return res, err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return res, err
}

// GetThread retrieves a thread record by its ID.
func (s *SQLiteStore) GetThread(ctx context.Context, threadID string) (*domain.Thread, error) {
	query := `SELECT thread_id, session_id, created_at, updated_at FROM threads WHERE thread_id = ?`

	row := s.db.QueryRowContext(ctx, query, threadID)

	var t domain.Thread
	var sessionID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&t.ThreadID, &sessionID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread row: %w", err)
	}

	t.SessionID = sessionID.String
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// SaveSessionID records the vendor session id for a thread.
func (s *SQLiteStore) SaveSessionID(ctx context.Context, threadID, sessionID string) error {
	now := time.Now().Unix()
	query := `
	INSERT INTO threads (thread_id, session_id, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(thread_id) DO UPDATE SET
		session_id = excluded.session_id,
		updated_at = excluded.updated_at`

	_, err := s.execWithRetry(ctx, query, threadID, sessionID, now, now)
	if err != nil {
		return fmt.Errorf("save session id: %w", err)
	}
	return nil
}

// CreateRun records the start of a run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	now := time.Now().Unix()
	query := `
	INSERT INTO runs (run_id, thread_id, parent_run_id, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var parentID interface{}
	if run.ParentRunID != "" {
		parentID = run.ParentRunID
	}

	_, err := s.execWithRetry(ctx, query,
		run.RunID, run.ThreadID, parentID, run.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status, errText, resultJSON string) error {
	query := `UPDATE runs SET status = ?, error = ?, result_json = ?, updated_at = ? WHERE run_id = ?`

	result, err := s.execWithRetry(ctx, query, status, errText, resultJSON, time.Now().Unix(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("FinishRun affected 0 rows", "run_id", runID)
	}
	return nil
}

// ListRuns returns a thread's runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, threadID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, thread_id, parent_run_id, status, error, result_json, created_at, updated_at
		FROM runs WHERE thread_id = ?
		ORDER BY created_at DESC, run_id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close runs rows", "error", closeErr)
		}
	}()

	var runs []*domain.Run
	for rows.Next() {
		var run domain.Run
		var parentID, errText, resultJSON sql.NullString
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&run.RunID, &run.ThreadID, &parentID, &run.Status,
			&errText, &resultJSON, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		run.ParentRunID = parentID.String
		run.Error = errText.String
		run.ResultJSON = resultJSON.String
		run.CreatedAt = time.Unix(createdAt, 0)
		run.UpdatedAt = time.Unix(updatedAt, 0)
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
