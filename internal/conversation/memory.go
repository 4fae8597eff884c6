package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process conversation store.
//
// Memory is safe for concurrent use by multiple goroutines. Appends to the
// same session are serialized by a per-session lock, so interleaved turns
// from concurrent requests never split a user/assistant pair.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
}

type memorySession struct {
	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the store's time source. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory conversation store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{sessions: make(map[string]*memorySession), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate ensures the session exists, creating an empty one on first
// access. Existing sessions and their history are left untouched.
func (m *Memory) GetOrCreate(_ context.Context, sessionID string) error {
	s := m.session(sessionID)
	s.mu.Lock()
	if s.lastActive.IsZero() {
		s.lastActive = m.now()
	}
	s.mu.Unlock()
	return nil
}

// Append adds turns to the session in order, creating the session if it does
// not exist. Assigned timestamps are strictly increasing within a session
// even when the clock does not advance between appends.
func (m *Memory) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := m.now()
	if last := len(s.turns); last > 0 && !ts.After(s.turns[last-1].Timestamp) {
		ts = s.turns[last-1].Timestamp.Add(time.Nanosecond)
	}
	for _, turn := range turns {
		turn.Timestamp = ts
		s.turns = append(s.turns, turn)
		ts = ts.Add(time.Nanosecond)
	}
	s.lastActive = m.now()
	return nil
}

// History returns the session's turns oldest first. An unknown session
// yields an empty history, mirroring Append's auto-create policy.
func (m *Memory) History(_ context.Context, sessionID string) ([]Turn, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return turns, nil
}

// Exists reports whether the session has been created.
func (m *Memory) Exists(_ context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok, nil
}

// Delete removes the session and its history. Deleting an unknown session
// is a no-op.
func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// ListIDs returns all session IDs in sorted order.
func (m *Memory) ListIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// EvictIdle removes sessions whose last append happened before the cutoff
// and reports how many were removed. Retention policy lives with the caller;
// the store only executes it.
func (m *Memory) EvictIdle(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(before)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted, nil
}

func (m *Memory) session(sessionID string) *memorySession {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[sessionID]; ok {
		return s
	}
	s = &memorySession{}
	m.sessions[sessionID] = s
	return s
}
