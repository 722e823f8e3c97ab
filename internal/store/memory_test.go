package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/taskengine/internal/model"
)

func makeTestTask(name string) model.Task {
	return model.Task{
		ID:        model.NewTaskID(),
		Name:      name,
		Priority:  1,
		Status:    model.Pending(),
		CreatedAt: time.Now().UTC(),
	}
}

func TestInsertAndGet(t *testing.T) {
	s := NewMemoryStore()
	task := makeTestTask("a")

	s.Insert(task)

	got, ok := s.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, task, got)
}

func TestGetUnknown(t *testing.T) {
	s := NewMemoryStore()

	got, ok := s.Get(uuid.New())
	assert.False(t, ok)
	assert.Equal(t, model.Task{}, got)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	task := makeTestTask("a")
	s.Insert(task)

	got, _ := s.Get(task.ID)
	got.Name = "mutated"
	got.Status = model.Completed()

	again, _ := s.Get(task.ID)
	assert.Equal(t, "a", again.Name)
	assert.Equal(t, model.KindPending, again.Status.Kind)
}

func TestInsertOverwritesCollidingID(t *testing.T) {
	s := NewMemoryStore()
	first := makeTestTask("first")
	second := first
	second.Name = "second"

	s.Insert(first)
	s.Insert(second)

	got, _ := s.Get(first.ID)
	assert.Equal(t, "second", got.Name)
	assert.Len(t, s.List(Filter{}), 1)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	s := NewMemoryStore()
	task := makeTestTask("a")
	s.Insert(task)

	processing, err := s.UpdateStatus(task.ID, model.Processing())
	require.NoError(t, err)
	assert.Equal(t, model.KindProcessing, processing.Status.Kind)
	assert.False(t, processing.StartedAt.IsZero())
	assert.True(t, processing.FinishedAt.IsZero())

	done, err := s.UpdateStatus(task.ID, model.Failed("exit 1"))
	require.NoError(t, err)
	assert.Equal(t, model.Failed("exit 1"), done.Status)
	assert.False(t, done.FinishedAt.IsZero())
	assert.Equal(t, "a", done.Name)
}

func TestUpdateStatusRejectsSkippingProcessing(t *testing.T) {
	s := NewMemoryStore()
	task := makeTestTask("a")
	s.Insert(task)

	_, err := s.UpdateStatus(task.ID, model.Completed())
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, _ := s.Get(task.ID)
	assert.Equal(t, model.KindPending, got.Status.Kind)
}

func TestUpdateStatusTerminalIsImmutable(t *testing.T) {
	s := NewMemoryStore()
	task := makeTestTask("a")
	s.Insert(task)

	_, err := s.UpdateStatus(task.ID, model.Processing())
	require.NoError(t, err)
	_, err = s.UpdateStatus(task.ID, model.Completed())
	require.NoError(t, err)

	for _, next := range []model.Status{model.Failed("late"), model.Processing(), model.Completed()} {
		_, err := s.UpdateStatus(task.ID, next)
		assert.ErrorIs(t, err, ErrInvalidTransition, "transition to %s", next)
	}

	got, _ := s.Get(task.ID)
	assert.Equal(t, model.Completed(), got.Status)
}

func TestUpdateStatusUnknown(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.UpdateStatus(uuid.New(), model.Processing())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	s := NewMemoryStore()
	a, b := makeTestTask("a"), makeTestTask("b")
	s.Insert(a)
	s.Insert(b)

	s.Remove(a.ID)
	s.Remove(uuid.New())

	_, ok := s.Get(a.ID)
	assert.False(t, ok)
	list := s.List(Filter{})
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestListFilters(t *testing.T) {
	s := NewMemoryStore()
	a, b, c := makeTestTask("a"), makeTestTask("b"), makeTestTask("c")
	b.BatchID = "batch-1"
	c.BatchID = "batch-1"
	s.Insert(a)
	s.Insert(b)
	s.Insert(c)
	_, err := s.UpdateStatus(c.ID, model.Processing())
	require.NoError(t, err)

	all := s.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].Name, all[1].Name, all[2].Name})

	batch := s.List(Filter{BatchID: "batch-1"})
	assert.Len(t, batch, 2)

	pendingInBatch := s.List(Filter{BatchID: "batch-1", Kind: model.KindPending})
	require.Len(t, pendingInBatch, 1)
	assert.Equal(t, "b", pendingInBatch[0].Name)

	assert.Empty(t, s.List(Filter{Kind: model.KindFailed}))
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	const n = 50

	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := range n {
		task := makeTestTask(fmt.Sprintf("task-%d", i))
		ids[i] = task.ID
		wg.Go(func() {
			s.Insert(task)
			if _, err := s.UpdateStatus(task.ID, model.Processing()); err != nil {
				t.Errorf("UpdateStatus processing: %v", err)
			}
			s.List(Filter{})
			if _, err := s.UpdateStatus(task.ID, model.Completed()); err != nil {
				t.Errorf("UpdateStatus completed: %v", err)
			}
		})
		wg.Go(func() {
			s.Get(task.ID)
		})
	}
	wg.Wait()

	for i, id := range ids {
		got, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("task-%d", i), got.Name)
		assert.Equal(t, model.KindCompleted, got.Status.Kind)
	}
}
