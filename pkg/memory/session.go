package memory

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Session is the explicit per-conversation context passed into every
// orchestration call. Lock it for the duration of a turn.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu         sync.Mutex
	Working    *WorkingMemory
	Episodic   *EpisodicMemory
	lastActive time.Time
	// detached is set once the store drops the session.
	detached atomic.Bool
}

// NewSession creates an empty session.
func NewSession(id, userID string, maxTurns int) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		Working:    NewWorkingMemory(),
		Episodic:   NewEpisodicMemory(maxTurns),
		lastActive: now,
	}
}

// Lock serializes turns for this session.
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock releases the turn lock and marks the session active.
func (s *Session) Unlock() {
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns when the last turn finished. Callers must hold the lock
// or accept a racy read.
func (s *Session) LastActive() time.Time {
	return s.lastActive
}

// Store is an arena of live sessions keyed by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
}

// NewStore returns an empty store whose sessions keep at most maxTurns
// episodic turns.
func NewStore(maxTurns int) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
	}
}

// Get returns a live session.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Open returns the session for id, creating it when absent.
func (st *Store) Open(id, userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := NewSession(id, userID, st.maxTurns)
	st.sessions[id] = s
	return s
}

// Delete drops a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		s.detached.Store(true)
		delete(st.sessions, id)
	}
}

// Readmit puts s back when the store dropped it while a caller still held
// it, so a turn that raced an eviction is not lost. The caller holds s's
// turn lock. It reports whether s had been dropped.
func (st *Store) Readmit(s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !s.detached.Load() {
		return false
	}
	if prev, ok := st.sessions[s.ID]; ok && prev != s {
		prev.detached.Store(true)
	}
	st.sessions[s.ID] = s
	s.detached.Store(false)
	return true
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns live session ids in sorted order.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep evicts sessions idle for longer than idle and returns their ids.
// Sessions mid-turn are skipped.
func (st *Store) Sweep(idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-idle)
	st.mu.Lock()
	defer st.mu.Unlock()
	var evicted []string
	for id, s := range st.sessions {
		if !s.mu.TryLock() {
			continue
		}
		stale := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if stale {
			s.detached.Store(true)
			delete(st.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
