package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jwm4/ambient-runner/internal/claude"
)

// ThreadStore persists thread-to-session mappings across restarts so a
// destroyed thread can resume its CLI session later.
type ThreadStore interface {
	SessionID(ctx context.Context, threadID string) (string, error)
	SaveSessionID(ctx context.Context, threadID, sessionID string) error
}

// Manager owns the thread-to-worker mapping. Creation is atomic per thread
// and each thread carries a serialization lock callers hold across a whole
// run so two runs never interleave on one worker.
type Manager struct {
	factory claude.Factory
	store   ThreadStore
	log     *slog.Logger

	mu         sync.Mutex
	workers    map[string]*Worker
	locks      map[string]*sync.Mutex
	sessionIDs map[string]string
}

// NewManager builds a manager. store may be nil; resumption then only
// survives within the process.
func NewManager(factory claude.Factory, store ThreadStore) *Manager {
	return &Manager{
		factory:    factory,
		store:      store,
		log:        slog.Default().With("component", "session_manager"),
		workers:    make(map[string]*Worker),
		locks:      make(map[string]*sync.Mutex),
		sessionIDs: make(map[string]string),
	}
}

// GetOrCreate returns the thread's worker, creating and starting one if
// none exists. A new worker resumes the thread's previous CLI session when
// a resumption token is known.
func (m *Manager) GetOrCreate(ctx context.Context, threadID string, opts claude.Options) *Worker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[threadID]; ok {
		return w
	}

	if opts.Resume == "" {
		opts.Resume = m.resumeTokenLocked(ctx, threadID)
	}
	w := NewWorker(threadID, m.factory(opts))
	w.Start()
	m.workers[threadID] = w
	if _, ok := m.locks[threadID]; !ok {
		m.locks[threadID] = &sync.Mutex{}
	}
	m.log.Info("worker created", "thread_id", threadID, "resume", opts.Resume != "")
	return w
}

func (m *Manager) resumeTokenLocked(ctx context.Context, threadID string) string {
	if id, ok := m.sessionIDs[threadID]; ok {
		return id
	}
	if m.store == nil {
		return ""
	}
	id, err := m.store.SessionID(ctx, threadID)
	if err != nil {
		m.log.Warn("session id lookup failed", "thread_id", threadID, "error", err)
		return ""
	}
	return id
}

// Existing returns the thread's worker without creating one.
func (m *Manager) Existing(threadID string) (*Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[threadID]
	return w, ok
}

// Lock returns the thread's serialization lock, creating it if needed.
// Callers hold it across a whole run (resolve, query, translate) so two
// runs on one thread never interleave their event output.
func (m *Manager) Lock(threadID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[threadID] = l
	}
	return l
}

// SessionID returns the thread's current CLI session id, falling back to a
// token captured from a destroyed worker or the store.
func (m *Manager) SessionID(ctx context.Context, threadID string) string {
	m.mu.Lock()
	w, ok := m.workers[threadID]
	m.mu.Unlock()
	if ok {
		if id := w.SessionID(); id != "" {
			return id
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeTokenLocked(ctx, threadID)
}

// Destroy stops the thread's worker, capturing its session id first so the
// thread can be resumed later. It takes the thread's serialization lock, so
// an in-flight run drains before its worker is torn down.
func (m *Manager) Destroy(ctx context.Context, threadID string) {
	lock := m.Lock(threadID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	w, ok := m.workers[threadID]
	delete(m.workers, threadID)
	delete(m.locks, threadID)
	m.mu.Unlock()
	if !ok {
		return
	}

	if id := w.SessionID(); id != "" {
		m.mu.Lock()
		m.sessionIDs[threadID] = id
		m.mu.Unlock()
		if m.store != nil {
			if err := m.store.SaveSessionID(ctx, threadID, id); err != nil {
				m.log.Warn("session id persist failed", "thread_id", threadID, "error", err)
			}
		}
	}
	w.Stop()
	m.log.Info("worker destroyed", "thread_id", threadID)
}

// Shutdown destroys every worker.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Destroy(ctx, id)
	}
}
