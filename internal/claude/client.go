package claude

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Client is the session surface over one CLI process. A client belongs to
// exactly one goroutine at a time; Interrupt is the only method safe to call
// concurrently with Receive.
type Client interface {
	// Connect starts the process and completes the protocol handshake.
	Connect(ctx context.Context) error
	// Query submits one user prompt for the given session.
	Query(ctx context.Context, prompt, sessionID string) error
	// Receive yields messages until the turn's ResultMessage, inclusive.
	Receive(ctx context.Context) iter.Seq2[Message, error]
	// Interrupt asks the CLI to stop the in-flight turn.
	Interrupt(ctx context.Context) error
	// Disconnect closes input, waits briefly for a clean exit so session
	// state is persisted, then terminates the process.
	Disconnect() error
}

// Factory builds a Client for a set of options. The session layer takes a
// Factory so tests can substitute fakes.
type Factory func(Options) Client

// NewCLIClient returns a client backed by a CLI subprocess.
func NewCLIClient(opts Options) Client {
	return &cliClient{
		opts: opts,
		msgs: make(chan received, 64),
		done: make(chan struct{}),
	}
}

type received struct {
	msg Message
	err error
}

type cliClient struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	proc      *process
	connected bool
	cancel    context.CancelFunc

	msgs chan received
	done chan struct{}

	closing atomic.Bool
	reqSeq  atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]chan ControlResponsePayload
}

const handshakeTimeout = 30 * time.Second

func (c *cliClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}

	// The process outlives the Connect call; a background context keeps it
	// alive until Disconnect.
	procCtx, cancel := context.WithCancel(context.Background())
	proc, err := startProcess(procCtx, c.opts)
	if err != nil {
		cancel()
		c.mu.Unlock()
		return err
	}
	c.proc = proc
	c.cancel = cancel
	c.connected = true
	c.pending = make(map[string]chan ControlResponsePayload)
	c.log = slog.Default().With("component", "claude_client")
	c.mu.Unlock()

	go c.readLoop()

	hsCtx, hsCancel := context.WithTimeout(ctx, handshakeTimeout)
	defer hsCancel()
	if _, err := c.sendControl(hsCtx, map[string]any{"subtype": "initialize"}); err != nil {
		c.cancel()
		return fmt.Errorf("initialize handshake: %w", err)
	}
	return nil
}

func (c *cliClient) readLoop() {
	defer close(c.msgs)
	for {
		line, err := c.proc.readLine()
		if err != nil {
			if c.closing.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = &ProcessError{ExitCode: -1, Stderr: c.proc.stderr.String(), Err: ErrProcessExited}
			}
			c.deliver(received{err: err})
			return
		}
		msg, err := ParseMessage(line)
		if err != nil {
			c.log.Warn("skipping malformed line", "error", err)
			continue
		}
		if msg == nil {
			c.log.Warn("skipping unknown message type", "line_prefix", truncate(string(line), 120))
			continue
		}
		switch m := msg.(type) {
		case ControlResponse:
			c.resolveControl(m.Response)
		case ControlRequest:
			c.log.Warn("unsolicited control request", "request_id", m.RequestID)
		default:
			if !c.deliver(received{msg: msg}) {
				return
			}
		}
	}
}

func (c *cliClient) deliver(item received) bool {
	select {
	case c.msgs <- item:
		return true
	case <-c.done:
		return false
	}
}

func (c *cliClient) Query(ctx context.Context, prompt, sessionID string) error {
	c.mu.Lock()
	proc := c.proc
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return proc.writeMessage(userMessageToSend{
		Type:      "user",
		SessionID: sessionID,
		Message:   userMessageToSendInner{Role: "user", Content: prompt},
	})
}

func (c *cliClient) Receive(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case item, ok := <-c.msgs:
				if !ok {
					yield(nil, ErrProcessExited)
					return
				}
				if item.err != nil {
					yield(nil, item.err)
					return
				}
				if !yield(item.msg, nil) {
					return
				}
				if _, isResult := item.msg.(ResultMessage); isResult {
					return
				}
			}
		}
	}
}

func (c *cliClient) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	_, err := c.sendControl(ctx, map[string]any{"subtype": "interrupt"})
	return err
}

// sendControl writes a control request and waits for its response.
func (c *cliClient) sendControl(ctx context.Context, request map[string]any) (ControlResponsePayload, error) {
	id := fmt.Sprintf("req_%d", c.reqSeq.Add(1))
	ch := make(chan ControlResponsePayload, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.proc.writeMessage(controlRequestToSend{Type: "control_request", RequestID: id, Request: request}); err != nil {
		return ControlResponsePayload{}, err
	}
	select {
	case resp := <-ch:
		if resp.Subtype == "error" {
			return resp, fmt.Errorf("control request %s failed: %s", id, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return ControlResponsePayload{}, ctx.Err()
	case <-c.done:
		return ControlResponsePayload{}, ErrProcessExited
	}
}

func (c *cliClient) resolveControl(resp ControlResponsePayload) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.RequestID]
	c.pendingMu.Unlock()
	if !ok {
		c.log.Warn("control response for unknown request", "request_id", resp.RequestID)
		return
	}
	ch <- resp
}

func (c *cliClient) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	proc := c.proc
	cancel := c.cancel
	c.mu.Unlock()

	c.closing.Store(true)
	_ = proc.closeStdin()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), disconnectWait)
	defer waitCancel()
	err := proc.wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		proc.kill()
		err = nil
	}
	cancel()
	close(c.done)
	// A nonzero exit surfaces with its code and captured stderr.
	return proc.exitError(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
