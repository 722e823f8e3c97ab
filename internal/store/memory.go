package store

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seantiz/taskengine/internal/model"
)

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps every task in a map guarded by a single mutex. Records
// live for the lifetime of the process; nothing is evicted.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*model.Task
	order []uuid.UUID // insertion order for stable listing
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]*model.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Insert adds t to the store.
func (s *MemoryStore) Insert(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = &t
}

// Get returns a copy of the task with the given ID.
func (s *MemoryStore) Get(id uuid.UUID) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *t, true
}

// UpdateStatus applies a lifecycle transition. Entering processing stamps
// StartedAt; entering a terminal status stamps FinishedAt.
func (s *MemoryStore) UpdateStatus(id uuid.UUID, status model.Status) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	if !model.ValidTransition(t.Status, status) {
		return *t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status.Kind, status.Kind)
	}

	t.Status = status
	switch {
	case status.Kind == model.KindProcessing:
		t.StartedAt = s.now()
	case status.Terminal():
		t.FinishedAt = s.now()
	}
	return *t, nil
}

// Remove deletes the task with the given ID.
func (s *MemoryStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return
	}
	delete(s.tasks, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

// List returns the tasks matching f in insertion order.
func (s *MemoryStore) List(f Filter) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]model.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if f.match(t) {
			result = append(result, *t)
		}
	}
	return result
}
