package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seantiz/taskengine/internal/executor"
	"github.com/seantiz/taskengine/internal/model"
	"github.com/seantiz/taskengine/internal/store"
)

const (
	// DefaultQueueSize is the capacity of the pending queue.
	DefaultQueueSize = 100

	// DefaultWorkers is the number of dispatch workers started by Run.
	DefaultWorkers = 8

	recordTimeout = 5 * time.Second
)

var (
	// ErrQueueSaturated is returned when a submission could not be enqueued
	// before the caller's context ended.
	ErrQueueSaturated = errors.New("task queue saturated")

	// ErrClosed is returned for submissions made after Close.
	ErrClosed = errors.New("engine closed")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Recorder receives every task once it reaches a terminal status.
type Recorder interface {
	Record(ctx context.Context, t model.Task) error
}

// Config holds engine sizing.
type Config struct {
	// QueueSize bounds how many submitted tasks may wait for a worker.
	QueueSize int

	// Workers is the number of tasks that may be processing at once.
	Workers int
}

// DefaultConfig returns a Config with the default queue size and worker count.
func DefaultConfig() Config {
	return Config{
		QueueSize: DefaultQueueSize,
		Workers:   DefaultWorkers,
	}
}

// Request describes one task to submit.
type Request struct {
	Name     string
	Priority int
}

// Batch is the result of a batch submission. TaskIDs follow the order of the
// submitted requests.
type Batch struct {
	ID      string
	TaskIDs []uuid.UUID
}

// Engine accepts tasks, queues their identities and advances them through
// their lifecycle on a fixed pool of workers.
type Engine struct {
	store    store.Store
	registry *executor.Registry
	recorder Recorder
	logger   *slog.Logger
	workers  int

	queue   chan uuid.UUID
	running atomic.Bool

	// mu guards closed and the queue's close. Submitters hold it for reading
	// while sending so Close never closes the channel under a sender.
	mu        sync.RWMutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
}

// NewEngine creates a new engine. rec may be nil.
func NewEngine(s store.Store, reg *executor.Registry, rec Recorder, logger *slog.Logger, cfg Config) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", cfg.Workers,
			"default_count", DefaultWorkers)
		cfg.Workers = DefaultWorkers
	}

	return &Engine{
		store:    s,
		registry: reg,
		recorder: rec,
		logger:   logger,
		workers:  cfg.Workers,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
		closing:  make(chan struct{}),
	}
}

// Submit records a new pending task and enqueues it for processing. It returns
// as soon as the task is queued. When the queue is full Submit waits for room
// until ctx is done, then fails with ErrQueueSaturated.
func (e *Engine) Submit(ctx context.Context, name string, priority int) (uuid.UUID, error) {
	return e.submit(ctx, Request{Name: name, Priority: priority}, "")
}

// BatchSubmit submits every request in order under a fresh batch ID. There is
// no atomicity across the batch: on error the returned Batch holds the IDs
// submitted before the failing request, and those tasks stay queued.
func (e *Engine) BatchSubmit(ctx context.Context, reqs []Request) (Batch, error) {
	batch := Batch{
		ID:      model.NewBatchID(),
		TaskIDs: make([]uuid.UUID, 0, len(reqs)),
	}

	for i, req := range reqs {
		id, err := e.submit(ctx, req, batch.ID)
		if err != nil {
			return batch, fmt.Errorf("submit task %d of %d: %w", i+1, len(reqs), err)
		}
		batch.TaskIDs = append(batch.TaskIDs, id)
	}

	e.logger.Debug("batch submitted", "batch_id", batch.ID, "count", len(batch.TaskIDs))
	return batch, nil
}

func (e *Engine) submit(ctx context.Context, req Request, batchID string) (uuid.UUID, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return uuid.Nil, ErrClosed
	}

	t := model.Task{
		ID:        model.NewTaskID(),
		BatchID:   batchID,
		Name:      req.Name,
		Priority:  req.Priority,
		Status:    model.Pending(),
		CreatedAt: time.Now().UTC(),
	}

	// The record must exist before its ID can reach a worker.
	e.store.Insert(t)

	if err := e.enqueue(ctx, t.ID); err != nil {
		e.store.Remove(t.ID)
		return uuid.Nil, err
	}

	tasksSubmitted.Inc()
	queueDepth.Set(float64(len(e.queue)))
	e.logger.Debug("task submitted",
		"task_id", t.ID,
		"name", t.Name,
		"priority", t.Priority,
		"queue_len", len(e.queue),
		"queue_cap", cap(e.queue))

	return t.ID, nil
}

func (e *Engine) enqueue(ctx context.Context, id uuid.UUID) error {
	select {
	case e.queue <- id:
		return nil
	default:
	}

	select {
	case e.queue <- id:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: queue capacity %d reached: %w", ErrQueueSaturated, cap(e.queue), ctx.Err())
	case <-e.closing:
		return ErrClosed
	}
}

// Status returns the current snapshot of a task, or false if the ID was never
// submitted.
func (e *Engine) Status(id uuid.UUID) (model.Task, bool) {
	return e.store.Get(id)
}

// Tasks lists tasks known to the engine in submission order.
func (e *Engine) Tasks(f store.Filter) []model.Task {
	return e.store.List(f)
}

// Executors returns the names with a dedicated executor.
func (e *Engine) Executors() []string {
	return e.registry.Names()
}

// QueueLen returns how many tasks are waiting for a worker.
func (e *Engine) QueueLen() int {
	return len(e.queue)
}

// Run starts the worker pool and blocks until it stops. Workers stop either
// when ctx is cancelled, after finishing the task in hand and leaving queued
// tasks pending, or after Close once the queue has been drained.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	e.logger.Info("engine started", "workers", e.workers, "queue_cap", cap(e.queue))

	var wg sync.WaitGroup
	for i := range e.workers {
		wg.Go(func() {
			e.worker(ctx, i)
		})
	}
	wg.Wait()

	e.logger.Info("engine stopped", "queued", len(e.queue))
	return nil
}

// Close stops accepting submissions and closes the queue so Run returns once
// every queued task has been processed. Submitters blocked on a full queue
// fail with ErrClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closing)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		close(e.queue)
	})
}

func (e *Engine) worker(ctx context.Context, n int) {
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case id, ok := <-e.queue:
			if !ok {
				return
			}
			queueDepth.Set(float64(len(e.queue)))
			e.process(ctx, n, id)
		}
	}
}

// process runs one task through its lifecycle: pending→processing→completed/failed.
func (e *Engine) process(ctx context.Context, worker int, id uuid.UUID) {
	t, err := e.store.UpdateStatus(id, model.Processing())
	if err != nil {
		// Only reachable if the record vanished or was already advanced.
		e.logger.Warn("skipping dequeued task", "task_id", id, "worker", worker, "error", err)
		return
	}

	tasksInFlight.Inc()
	defer tasksInFlight.Dec()

	e.logger.Debug("task processing", "task_id", id, "name", t.Name, "worker", worker)

	// Dequeued tasks always run to a terminal status, even during shutdown.
	execCtx := context.WithoutCancel(ctx)
	start := time.Now()
	err = e.execute(execCtx, t)
	taskDuration.Observe(time.Since(start).Seconds())

	final := model.Completed()
	if err != nil {
		final = model.Failed(err.Error())
		e.logger.Warn("task failed", "task_id", id, "name", t.Name, "error", err)
	}

	done, err := e.store.UpdateStatus(id, final)
	if err != nil {
		e.logger.Error("failed to record terminal status", "task_id", id, "status", final.Kind, "error", err)
		return
	}
	tasksFinished.WithLabelValues(string(final.Kind)).Inc()

	e.logger.Info("task finished",
		"task_id", id,
		"name", done.Name,
		"status", done.Status.Kind,
		"duration_ms", done.Duration().Milliseconds())

	e.record(execCtx, done)
}

// execute resolves and runs the task's executor, converting a panic into an
// error so one bad executor cannot take down a worker.
func (e *Engine) execute(ctx context.Context, t model.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor panicked",
				"task_id", t.ID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	return e.registry.Resolve(t.Name).Execute(ctx, t)
}

func (e *Engine) record(ctx context.Context, t model.Task) {
	if e.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	if err := e.recorder.Record(ctx, t); err != nil {
		e.logger.Error("failed to archive task", "task_id", t.ID, "error", err)
	}
}
