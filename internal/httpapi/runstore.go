package httpapi

import (
	"fmt"
	"sync"
	"time"
)

// RunState is the lifecycle position of a run record.
type RunState string

const (
	RunQueued    RunState = "queued"
	RunWorking   RunState = "working"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// RunRecord tracks one pipeline run as seen by API clients. Failed runs
// carry no error detail; that goes to the log.
type RunRecord struct {
	ID        string    `json:"id"`
	Session   string    `json:"session"`
	State     RunState  `json:"state"`
	Topology  string    `json:"topology,omitempty"`
	Answer    string    `json:"answer,omitempty"`
	Repaired  bool      `json:"repaired,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunStore is a concurrency-safe in-memory store of run records. Records are
// kept in a map keyed by run ID with a separate slice maintaining insertion
// order for deterministic listing.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]*RunRecord
	orderIDs []string
}

// NewRunStore returns an initialized RunStore ready for use.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:     make(map[string]*RunRecord),
		orderIDs: make([]string, 0),
	}
}

// Create stores a new record in the queued state. It returns an error if a
// record with the same ID already exists.
func (s *RunStore) Create(id, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; exists {
		return fmt.Errorf("run %q already exists", id)
	}
	now := time.Now().UTC()
	s.runs[id] = &RunRecord{
		ID:        id,
		Session:   session,
		State:     RunQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.orderIDs = append(s.orderIDs, id)
	return nil
}

// Get returns a copy of the record with the given ID. The copy is safe to
// mutate without affecting the store.
func (s *RunStore) Get(id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %q not found", id)
	}
	out := *rec
	return &out, nil
}

// Update applies the mutation function fn to the record identified by id
// under a write lock and stamps UpdatedAt. It returns an error if the record
// is not found.
func (s *RunStore) Update(id string, fn func(*RunRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %q not found", id)
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// List returns copies of all records in insertion order.
func (s *RunStore) List() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.orderIDs))
	for _, id := range s.orderIDs {
		out = append(out, *s.runs[id])
	}
	return out
}
