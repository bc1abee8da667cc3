// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/jwm4/ambient-runner/internal/domain"
)

// Repository persists thread resumption tokens and run records.
type Repository interface {
	// GetThread retrieves a thread record, or nil if none exists.
	GetThread(ctx context.Context, threadID string) (*domain.Thread, error)

	// SaveSessionID records the vendor session id for a thread, creating
	// the thread record if needed.
	SaveSessionID(ctx context.Context, threadID, sessionID string) error

	// CreateRun records the start of a run.
	CreateRun(ctx context.Context, run *domain.Run) error

	// FinishRun records a run's terminal status, error text and result.
	FinishRun(ctx context.Context, runID, status, errText, resultJSON string) error

	// ListRuns returns a thread's runs, newest first, capped at limit.
	ListRuns(ctx context.Context, threadID string, limit int) ([]*domain.Run, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// ThreadSessions adapts a Repository to the session layer's ThreadStore
// interface, which only needs the resumption token mapping.
type ThreadSessions struct {
	Repo Repository
}

// SessionID returns the stored vendor session id for a thread, or empty.
func (t ThreadSessions) SessionID(ctx context.Context, threadID string) (string, error) {
	rec, err := t.Repo.GetThread(ctx, threadID)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.SessionID, nil
}

// SaveSessionID persists the vendor session id for a thread.
func (t ThreadSessions) SaveSessionID(ctx context.Context, threadID, sessionID string) error {
	return t.Repo.SaveSessionID(ctx, threadID, sessionID)
}
