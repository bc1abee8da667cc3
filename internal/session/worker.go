// Package session owns the concurrency model around CLI clients. Each thread
// gets one Worker goroutine that is the sole owner of one client; callers
// talk to it over channels and never touch the client directly.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jwm4/ambient-runner/internal/claude"
)

// ErrWorkerStopped is returned when a turn is submitted to a stopped worker.
var ErrWorkerStopped = errors.New("session: worker stopped")

// Result is one item of a turn's output stream: either a message or an
// error, never both. The stream's channel is closed exactly once when the
// turn completes, which is the only end-of-turn signal.
type Result struct {
	Msg claude.Message
	Err error
}

// turnBuffer sizes each turn's output channel so the worker rarely blocks
// on a slow consumer.
const turnBuffer = 64

type turn struct {
	prompt    string
	sessionID string
	out       chan Result
}

// Worker drives one CLI client for one thread. All client access happens on
// the worker goroutine; Interrupt is the one concurrent-safe escape hatch
// the client itself provides.
type Worker struct {
	threadID string
	client   claude.Client
	log      *slog.Logger

	turns chan turn
	stop  chan struct{}
	done  chan struct{}

	stopOnce sync.Once

	mu         sync.Mutex
	sessionID  string
	connectErr error
}

// stopWait bounds how long Stop waits for the worker loop to finish its
// current turn before force-disconnecting the client.
const stopWait = 15 * time.Second

// NewWorker builds a worker for the thread. Call Start before Query.
func NewWorker(threadID string, client claude.Client) *Worker {
	return &Worker{
		threadID: threadID,
		client:   client,
		log:      slog.Default().With("component", "session_worker", "thread_id", threadID),
		turns:    make(chan turn, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	defer func() {
		close(w.done)
		// Turns that raced into the queue while stopping must still get
		// their terminal close.
		w.failQueued(ErrWorkerStopped)
	}()

	ctx := context.Background()
	if err := w.client.Connect(ctx); err != nil {
		w.mu.Lock()
		w.connectErr = err
		w.mu.Unlock()
		w.log.Error("client connect failed", "error", err)
		w.failPending(err)
		return
	}
	w.log.Info("client connected")

	for {
		select {
		case <-w.stop:
			w.disconnect()
			return
		case t := <-w.turns:
			w.serveTurn(ctx, t)
		}
	}
}

// failPending answers every queued and future turn with the connect error
// until the worker is stopped. A connect failure must reach the caller of
// the first turn, not vanish into the log.
func (w *Worker) failPending(err error) {
	for {
		select {
		case <-w.stop:
			return
		case t := <-w.turns:
			t.out <- Result{Err: fmt.Errorf("session %s: %w", w.threadID, err)}
			close(t.out)
		}
	}
}

// failQueued fails whatever turns are sitting in the queue right now.
func (w *Worker) failQueued(err error) {
	for {
		select {
		case t := <-w.turns:
			t.out <- Result{Err: err}
			close(t.out)
		default:
			return
		}
	}
}

func (w *Worker) serveTurn(ctx context.Context, t turn) {
	defer close(t.out)

	if err := w.client.Query(ctx, t.prompt, t.sessionID); err != nil {
		t.out <- Result{Err: fmt.Errorf("query: %w", err)}
		return
	}

	for msg, err := range w.client.Receive(ctx) {
		if err != nil {
			t.out <- Result{Err: err}
			return
		}
		if sys, ok := msg.(claude.SystemMessage); ok && sys.Subtype == "init" && sys.SessionID != "" {
			w.mu.Lock()
			w.sessionID = sys.SessionID
			w.mu.Unlock()
		}
		select {
		case t.out <- Result{Msg: msg}:
		case <-w.stop:
			// Consumer gone and worker stopping; abandon the turn.
			return
		}
	}
}

// Query submits one prompt. The returned channel streams the turn's
// messages and is closed when the turn completes.
func (w *Worker) Query(ctx context.Context, prompt string) (<-chan Result, error) {
	select {
	case <-w.done:
		return nil, ErrWorkerStopped
	default:
	}
	out := make(chan Result, turnBuffer)
	t := turn{prompt: prompt, sessionID: w.SessionID(), out: out}
	select {
	case w.turns <- t:
	case <-w.done:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// The enqueue can race the worker's exit: its final drain may have run
	// before the buffered send landed. Re-check and drain so no accepted
	// turn is left without a terminal close.
	select {
	case <-w.done:
		w.failQueued(ErrWorkerStopped)
		return nil, ErrWorkerStopped
	default:
	}
	return out, nil
}

// Interrupt asks the client to stop the in-flight turn. A client that never
// connected has nothing to stop; that case is logged, not an error.
func (w *Worker) Interrupt(ctx context.Context) error {
	select {
	case <-w.done:
		return ErrWorkerStopped
	default:
	}
	if err := w.client.Interrupt(ctx); err != nil {
		if errors.Is(err, claude.ErrNotConnected) {
			w.log.Debug("interrupt before connect; nothing to stop")
			return nil
		}
		return err
	}
	return nil
}

// SessionID returns the CLI session id captured from the init message, or
// empty if no turn has run yet.
func (w *Worker) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// ConnectErr returns the connect failure, if any.
func (w *Worker) ConnectErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connectErr
}

// Stop shuts the worker down. It waits for the current turn to finish so
// the client can disconnect cleanly and persist session state; past a bound
// it force-disconnects. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		select {
		case <-w.done:
		case <-time.After(stopWait):
			w.log.Warn("worker did not stop in time, forcing disconnect")
			w.disconnect()
			<-w.done
		}
	})
}

func (w *Worker) disconnect() {
	if err := w.client.Disconnect(); err != nil {
		w.log.Warn("client disconnect failed", "error", err)
	}
}
