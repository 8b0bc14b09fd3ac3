package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusy is returned by Acquire while another request is working on the
// same checkout.
var ErrBusy = errors.New("checkout busy")

// Entry is one browser's live checkout.
type Entry struct {
	mu       sync.Mutex
	orch     *Orchestrator
	notices  *NoticeQueue
	lastUsed atomic.Int64
	resumed  sync.Once
}

// Orchestrator returns the entry's checkout orchestrator.
func (e *Entry) Orchestrator() *Orchestrator { return e.orch }

// Notices returns the entry's pending toasts.
func (e *Entry) Notices() *NoticeQueue { return e.notices }

// resume restores the entry's session from the snapshot store once, so an
// entry rebuilt after eviction, a restart or a move to another replica
// picks up where the browser left off.
func (e *Entry) resume(ctx context.Context) {
	e.resumed.Do(func() { e.orch.Resume(ctx) })
}

func (e *Entry) touch(now time.Time) {
	e.lastUsed.Store(now.UnixNano())
}

// Manager keeps one orchestrator per browser slot so a checkout session is
// reused across requests instead of rebuilt for each one.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*Entry

	deps    Dependencies
	opts    Options
	idleTTL time.Duration
	now     func() time.Time
}

// NewManager creates a manager. Entries unused for idleTTL are evicted by
// EvictIdle; their state survives in the snapshot store.
func NewManager(deps Dependencies, opts Options, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = opts.SessionTTL
	}
	return &Manager{
		entries: make(map[string]*Entry),
		deps:    deps,
		opts:    opts,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Get returns the entry for slotID, creating it if needed. A new entry is
// restored from the snapshot store before it is returned.
func (m *Manager) Get(ctx context.Context, slotID string) *Entry {
	e := m.entry(slotID)
	e.resume(ctx)
	return e
}

func (m *Manager) entry(slotID string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[slotID]
	if !ok {
		notices := NewNoticeQueue()
		e = &Entry{
			orch:    NewOrchestrator(slotID, m.deps, m.opts, notices),
			notices: notices,
		}
		m.entries[slotID] = e
		activeSessions.Set(float64(len(m.entries)))
	}
	e.touch(m.now())
	return e
}

// Acquire returns the entry for slotID with exclusive access. It does not
// wait: ErrBusy is returned when another request holds the entry. Call
// release when done.
func (m *Manager) Acquire(ctx context.Context, slotID string) (e *Entry, release func(), err error) {
	e = m.entry(slotID)
	if !e.mu.TryLock() {
		return nil, nil, ErrBusy
	}
	e.resume(ctx)
	return e, func() {
		e.touch(m.now())
		e.mu.Unlock()
	}, nil
}

// Len returns the number of live entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// EvictIdle drops entries that have not been used for the idle TTL and are
// not in use, returning how many were dropped.
func (m *Manager) EvictIdle() int {
	cutoff := m.now().Add(-m.idleTTL).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for slot, e := range m.entries {
		if e.lastUsed.Load() > cutoff {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		delete(m.entries, slot)
		e.mu.Unlock()
		n++
	}
	activeSessions.Set(float64(len(m.entries)))
	return n
}

// Run evicts idle entries every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// Notice is a toast waiting to be shown.
type Notice struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

const maxNotices = 10

// NoticeQueue is a per-browser flash queue; the next state response
// drains it.
type NoticeQueue struct {
	mu      sync.Mutex
	notices []Notice
}

// NewNoticeQueue returns an empty queue.
func NewNoticeQueue() *NoticeQueue {
	return &NoticeQueue{}
}

// Success queues a success toast. The oldest notice is dropped once the
// queue is full.
func (q *NoticeQueue) Success(_ context.Context, title, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.notices) >= maxNotices {
		q.notices = q.notices[1:]
	}
	q.notices = append(q.notices, Notice{Kind: "success", Title: title, Message: message})
	return nil
}

// Drain returns the queued notices and empties the queue.
func (q *NoticeQueue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.notices
	q.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

var _ Toaster = (*NoticeQueue)(nil)
