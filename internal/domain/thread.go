package domain

import "time"

// Thread is a persistent conversation identity. SessionID is the vendor
// resumption token captured from the CLI; it outlives the worker process so
// a restarted runner can resume the conversation.
type Thread struct {
	ThreadID  string
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}
