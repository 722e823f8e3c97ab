package executor

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/taskengine/internal/model"
)

// DefaultDelay is the simulated work time of the default Sleep executor.
const DefaultDelay = 2 * time.Second

// Executor carries out a single task. A non-nil error marks the task failed
// with the error text as its reason.
type Executor interface {
	Execute(ctx context.Context, t model.Task) error
}

// Func adapts an ordinary function to the Executor interface.
type Func func(ctx context.Context, t model.Task) error

// Execute calls f(ctx, t).
func (f Func) Execute(ctx context.Context, t model.Task) error {
	return f(ctx, t)
}

// Sleep simulates work by waiting for Delay and then succeeding.
type Sleep struct {
	Delay time.Duration
}

// Execute waits for the configured delay or until ctx is done.
func (s Sleep) Execute(ctx context.Context, _ model.Task) error {
	return wait(ctx, s.Delay)
}

// Fail simulates work that always ends in failure with Reason.
type Fail struct {
	Delay  time.Duration
	Reason string
}

// Execute waits for the configured delay and then returns Reason as an error.
func (f Fail) Execute(ctx context.Context, _ model.Task) error {
	if err := wait(ctx, f.Delay); err != nil {
		return err
	}
	return errors.New(f.Reason)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
