package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/seantiz/taskengine/internal/model"
)

var (
	// ErrNotFound is returned when a task identity is unknown to the store.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a task status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Kind    model.StatusKind
	BatchID string
}

func (f Filter) match(t *model.Task) bool {
	if f.Kind != "" && t.Status.Kind != f.Kind {
		return false
	}
	if f.BatchID != "" && t.BatchID != f.BatchID {
		return false
	}
	return true
}

// Store is the authoritative mapping from task identity to task record.
// Implementations must be safe for concurrent use and must never hand out a
// reference that lets callers mutate a record without synchronization.
type Store interface {
	// Insert adds t keyed by its ID. An existing record with the same ID is
	// overwritten.
	Insert(t model.Task)

	// Get returns a copy of the record, or false if the ID is unknown.
	Get(id uuid.UUID) (model.Task, bool)

	// UpdateStatus moves the record to status and returns a copy of the
	// updated record.
	UpdateStatus(id uuid.UUID, status model.Status) (model.Task, error)

	// Remove deletes the record. Unknown IDs are ignored.
	Remove(id uuid.UUID)

	// List returns copies of matching records in insertion order.
	List(f Filter) []model.Task
}
