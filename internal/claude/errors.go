package claude

import (
	"errors"
	"fmt"
)

// Sentinel errors for client state checks.
var (
	ErrNotConnected     = errors.New("claude: client not connected")
	ErrAlreadyConnected = errors.New("claude: client already connected")
	ErrProcessExited    = errors.New("claude: CLI process exited")
)

// CLINotFoundError indicates the CLI binary could not be located.
type CLINotFoundError struct {
	Path string
	Err  error
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("claude: CLI not found at %q: %v", e.Path, e.Err)
}

func (e *CLINotFoundError) Unwrap() error { return e.Err }

// ProcessError indicates the CLI process failed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("claude: process failed (exit %d): %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("claude: process failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ProtocolError indicates malformed or unexpected wire traffic.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("claude: protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
