package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// maxLineBytes bounds a single NDJSON line from the CLI. Tool results can
// carry large payloads.
const maxLineBytes = 16 * 1024 * 1024

// process manages the CLI subprocess and its pipes.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *bytes.Buffer

	writeMu sync.Mutex
	stdinMu sync.Mutex
	closed  bool
}

// startProcess spawns the CLI with the given options. The context bounds the
// whole process lifetime; cancelling it kills the process.
func startProcess(ctx context.Context, opts Options) (*process, error) {
	path := opts.cliPath()
	if _, err := exec.LookPath(path); err != nil {
		return nil, &CLINotFoundError{Path: path, Err: err}
	}

	cmd := exec.CommandContext(ctx, path, opts.BuildCLIArgs()...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Env = append(os.Environ(), opts.processEnv()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Err: fmt.Errorf("start: %w", err)}
	}

	return &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1024*1024),
		stderr: stderr,
	}, nil
}

// readLine returns the next NDJSON line, without the trailing newline.
func (p *process) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := p.stdout.ReadLine()
		if err != nil {
			return nil, err
		}
		if buf == nil && !isPrefix {
			out := make([]byte, len(chunk))
			copy(out, chunk)
			return out, nil
		}
		buf = append(buf, chunk...)
		if len(buf) > maxLineBytes {
			return nil, &ProtocolError{Err: errors.New("line exceeds size limit")}
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

// writeMessage marshals v and writes it as one NDJSON line.
func (p *process) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinMu.Lock()
	closed := p.closed
	p.stdinMu.Unlock()
	if closed {
		return ErrNotConnected
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return &ProcessError{Err: fmt.Errorf("write stdin: %w", err)}
	}
	return nil
}

// closeStdin signals end of input. The CLI exits after finishing its work
// and persisting session state.
func (p *process) closeStdin() error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.stdin.Close()
}

// wait blocks until the process exits or the context expires.
func (p *process) wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// kill terminates the process immediately.
func (p *process) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// exitError wraps the process exit state with captured stderr.
func (p *process) exitError(err error) error {
	if err == nil {
		return nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ProcessError{ExitCode: code, Stderr: p.stderr.String(), Err: err}
}

// disconnectWait is how long disconnect waits for a clean exit after
// closing stdin before killing the process.
const disconnectWait = 5 * time.Second
