package domain

import "time"

// Run status values.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusHalted   = "halted"
	RunStatusError    = "error"
)

// Run is one request/response cycle within a thread, recorded for
// inspection and lineage tracking.
type Run struct {
	RunID       string
	ThreadID    string
	ParentRunID string
	Status      string
	Error       string
	ResultJSON  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
