package serverstate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gaspardpetit/chatrelay/internal/logx"
)

// Status values reported by a Tracker.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
	StatusUnknown  = "unknown"
)

// State holds the server status and draining flag. Both fields are written
// together so readers always observe a consistent snapshot.
type State struct {
	Status   string `json:"status"`
	Draining bool   `json:"draining"`
}

// Store persists the server state. Implementations may keep it in memory or
// in an external service such as Redis.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// memoryStore implements Store using an atomic.Value.
type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() Store {
	ms := &memoryStore{}
	ms.v.Store(State{Status: StatusNotReady})
	return ms
}

func (m *memoryStore) Load(context.Context) (State, error) {
	if st, ok := m.v.Load().(State); ok {
		return st, nil
	}
	return State{Status: StatusUnknown}, nil
}

func (m *memoryStore) Save(_ context.Context, s State) error {
	m.v.Store(s)
	return nil
}

// Tracker serializes state transitions over a Store. When the store fails,
// the last state written by this process is reported instead.
type Tracker struct {
	mu    sync.Mutex
	store Store
	last  State
}

// NewTracker returns a Tracker backed by store, or by memory when store is nil.
func NewTracker(store Store) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{store: store, last: State{Status: StatusNotReady}}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot(ctx context.Context) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(ctx)
}

// SetStatus updates the status string, leaving the draining flag alone.
func (t *Tracker) SetStatus(ctx context.Context, status string) {
	t.update(ctx, func(s *State) { s.Status = status })
}

// StartDrain marks the server as draining.
func (t *Tracker) StartDrain(ctx context.Context) {
	t.update(ctx, func(s *State) {
		s.Draining = true
		s.Status = StatusDraining
	})
}

// IsDraining reports whether the server is draining.
func (t *Tracker) IsDraining(ctx context.Context) bool {
	return t.Snapshot(ctx).Draining
}

func (t *Tracker) update(ctx context.Context, fn func(*State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.loadLocked(ctx)
	fn(&st)
	t.last = st
	if err := t.store.Save(ctx, st); err != nil {
		logx.Log.Warn().Err(err).Str("status", st.Status).Msg("save server state")
	}
}

func (t *Tracker) loadLocked(ctx context.Context) State {
	st, err := t.store.Load(ctx)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("load server state")
		return t.last
	}
	return st
}
