package chat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store is a concurrency-safe in-memory session store. Each session holds an
// append-only conversation history keyed by session ID, with a separate slice
// maintaining insertion order for deterministic listing. Nothing survives a
// process restart.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	orderIDs []string // insertion-order session IDs
}

// NewStore returns an initialized Store ready for use.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]Turn),
		orderIDs: make([]string, 0),
	}
}

// Create registers a new empty session and returns its ID.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions[id] = nil
	s.orderIDs = append(s.orderIDs, id)
	return id
}

// Ensure registers an empty session under a caller-chosen ID if one does not
// already exist. Callers that name their own sessions use this instead of
// Create.
func (s *Store) Ensure(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return
	}
	s.sessions[id] = nil
	s.orderIDs = append(s.orderIDs, id)
}

// Append adds turns to the end of a session's history. It returns an error
// if the session does not exist; history is append-only, so this is the only
// write path besides Clear.
func (s *Store) Append(id string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	for _, t := range turns {
		history = append(history, copyTurn(t))
	}
	s.sessions[id] = history
	return nil
}

// Snapshot returns a deep copy of a session's history. The copy is safe to
// read and mutate without affecting the store; the pipeline receives exactly
// this snapshot and never the live slice.
func (s *Store) Snapshot(id string) ([]Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return CopyTurns(history), true
}

// Clear empties a session's history while keeping the session alive.
// It reports whether the session existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.sessions[id] = nil
	return true
}

// Delete removes a session entirely. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	for i, oid := range s.orderIDs {
		if oid == id {
			s.orderIDs = append(s.orderIDs[:i], s.orderIDs[i+1:]...)
			break
		}
	}
	return true
}

// List returns session IDs in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.orderIDs))
	copy(out, s.orderIDs)
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
