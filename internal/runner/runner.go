// Package runner coordinates one protocol run end to end: resolve the
// thread's worker, hold the thread lock, feed the turn's messages through
// the translator, and wrap the result in run lifecycle events.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwm4/ambient-runner/internal/adapter"
	"github.com/jwm4/ambient-runner/internal/agui"
	"github.com/jwm4/ambient-runner/internal/claude"
	"github.com/jwm4/ambient-runner/internal/domain"
	"github.com/jwm4/ambient-runner/internal/session"
	"github.com/jwm4/ambient-runner/internal/store"
)

// ErrNoActiveSession is returned by Interrupt when the thread has no live
// worker.
var ErrNoActiveSession = errors.New("runner: no active session for thread")

// Runner executes protocol runs against a session manager. Construct once
// at startup and share; all state lives in the manager and the store.
type Runner struct {
	manager *session.Manager
	repo    store.Repository
	base    claude.Options
	log     *slog.Logger
}

// New builds a runner. repo may be nil to disable run records.
func New(manager *session.Manager, repo store.Repository, base claude.Options) *Runner {
	return &Runner{
		manager: manager,
		repo:    repo,
		base:    base,
		log:     slog.Default().With("component", "runner"),
	}
}

// Run executes one protocol run and yields its ordered event sequence. The
// sequence always opens with RUN_STARTED and closes with exactly one of
// RUN_FINISHED or RUN_ERROR.
func (r *Runner) Run(ctx context.Context, input agui.RunAgentInput) iter.Seq2[agui.Event, error] {
	return func(yield func(agui.Event, error) bool) {
		if input.ThreadID == "" {
			input.ThreadID = uuid.NewString()
		}
		if input.RunID == "" {
			input.RunID = uuid.NewString()
		}
		log := r.log.With("thread_id", input.ThreadID, "run_id", input.RunID)

		if !yield(agui.RunStartedEvent{
			EventType:   agui.EventTypeRunStarted,
			ThreadID:    input.ThreadID,
			RunID:       input.RunID,
			ParentRunID: input.ParentRunID,
			Input:       captureInput(input),
		}, nil) {
			return
		}

		prompt := input.Prompt()
		if prompt == "" {
			log.Warn("no user message in run input")
			yield(agui.RunFinishedEvent{EventType: agui.EventTypeRunFinished, ThreadID: input.ThreadID, RunID: input.RunID}, nil)
			return
		}

		if len(input.State) > 0 {
			if !yield(agui.StateSnapshotEvent{EventType: agui.EventTypeStateSnapshot, Snapshot: input.State}, nil) {
				return
			}
		}

		r.recordRunStart(ctx, input)

		// The thread lock is held across the whole resolve-query-translate
		// sequence so two runs on one thread never interleave events.
		lock := r.manager.Lock(input.ThreadID)
		lock.Lock()
		defer lock.Unlock()

		opts := adapter.BuildOptions(r.base, input)
		worker := r.manager.GetOrCreate(ctx, input.ThreadID, opts)

		out, err := worker.Query(ctx, prompt)
		if err != nil {
			log.Error("query submission failed", "error", err)
			r.recordRunEnd(ctx, input.RunID, domain.RunStatusError, err.Error(), nil)
			yield(agui.RunErrorEvent{EventType: agui.EventTypeRunError, ThreadID: input.ThreadID, RunID: input.RunID, Message: err.Error()}, nil)
			return
		}

		tr := adapter.NewTranslator(input)
		tr.OnHalt = func() {
			if err := worker.Interrupt(context.Background()); err != nil {
				log.Warn("interrupt after halt failed", "error", err)
			}
		}

		for ev, terr := range tr.Translate(turnStream(out)) {
			if terr != nil {
				log.Error("turn stream failed", "error", terr)
				r.recordRunEnd(ctx, input.RunID, domain.RunStatusError, terr.Error(), nil)
				yield(agui.RunErrorEvent{EventType: agui.EventTypeRunError, ThreadID: input.ThreadID, RunID: input.RunID, Message: terr.Error()}, nil)
				return
			}
			if !yield(ev, nil) {
				// Consumer is gone; keep draining so the worker never
				// blocks on the abandoned turn.
				go func() {
					for range out {
					}
				}()
				return
			}
		}

		status := domain.RunStatusFinished
		if tr.Halted() {
			status = domain.RunStatusHalted
		}
		r.recordRunEnd(ctx, input.RunID, status, "", tr.Result())
		yield(agui.RunFinishedEvent{EventType: agui.EventTypeRunFinished, ThreadID: input.ThreadID, RunID: input.RunID, Result: tr.Result()}, nil)
	}
}

// Interrupt forwards a cancellation to the thread's live worker.
func (r *Runner) Interrupt(ctx context.Context, threadID string) error {
	worker, ok := r.manager.Existing(threadID)
	if !ok {
		return ErrNoActiveSession
	}
	return worker.Interrupt(ctx)
}

// DestroyThread tears down the thread's worker, capturing its resumption
// token for later.
func (r *Runner) DestroyThread(ctx context.Context, threadID string) {
	r.manager.Destroy(ctx, threadID)
}

// SessionID reports the thread's vendor session id, if known.
func (r *Runner) SessionID(ctx context.Context, threadID string) string {
	return r.manager.SessionID(ctx, threadID)
}

// Shutdown stops every worker.
func (r *Runner) Shutdown(ctx context.Context) {
	r.manager.Shutdown(ctx)
}

// turnStream adapts a worker turn's result channel to the translator's
// input. Channel closure is the turn's terminal marker.
func turnStream(out <-chan session.Result) iter.Seq2[claude.Message, error] {
	return func(yield func(claude.Message, error) bool) {
		for res := range out {
			if !yield(res.Msg, res.Err) {
				return
			}
		}
	}
}

func captureInput(input agui.RunAgentInput) map[string]any {
	return map[string]any{
		"threadId":       input.ThreadID,
		"runId":          input.RunID,
		"parentRunId":    input.ParentRunID,
		"messages":       input.Messages,
		"tools":          input.Tools,
		"context":        input.Context,
		"state":          input.State,
		"forwardedProps": input.ForwardedProps,
	}
}

func (r *Runner) recordRunStart(ctx context.Context, input agui.RunAgentInput) {
	if r.repo == nil {
		return
	}
	run := &domain.Run{
		RunID:       input.RunID,
		ThreadID:    input.ThreadID,
		ParentRunID: input.ParentRunID,
		Status:      domain.RunStatusRunning,
	}
	if err := r.repo.CreateRun(ctx, run); err != nil {
		r.log.Warn("run record create failed", "run_id", input.RunID, "error", err)
	}
}

func (r *Runner) recordRunEnd(ctx context.Context, runID, status, errText string, result map[string]any) {
	if r.repo == nil {
		return
	}
	resultJSON := ""
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			resultJSON = string(b)
		}
	}
	if err := r.repo.FinishRun(ctx, runID, status, errText, resultJSON); err != nil {
		r.log.Warn("run record finish failed", "run_id", runID, "error", err)
	}
}
