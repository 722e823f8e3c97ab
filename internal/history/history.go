// Package history archives tasks that reached a terminal status so they can be
// listed and aggregated after the fact. It is a read-side record only: the
// engine never reloads or re-enqueues anything from it.
package history

import (
	"context"
	"errors"

	"github.com/seantiz/taskengine/internal/model"
)

// ErrNotTerminal is returned when asked to record a task that has not finished.
var ErrNotTerminal = errors.New("task has not reached a terminal status")

// Stats holds aggregate figures over archived tasks.
type Stats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the archive operations.
type Store interface {
	Record(ctx context.Context, t model.Task) error
	List(ctx context.Context, limit, offset int) ([]model.Task, int, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
