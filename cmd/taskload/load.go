package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/taskengine/internal/model"
)

type loadConfig struct {
	Tasks        int
	Concurrency  int
	Name         string
	PollInterval time.Duration
	Timeout      time.Duration
}

// summary tallies the outcome of one load run.
type summary struct {
	Submitted int
	Rejected  int
	ByStatus  map[model.StatusKind]int
	Errors    int
	Elapsed   time.Duration
	maxTask   time.Duration
	sumTask   time.Duration
}

func (s *summary) add(t model.Task) {
	s.ByStatus[t.Status.Kind]++
	d := t.Duration()
	s.sumTask += d
	s.maxTask = max(s.maxTask, d)
}

func (s *summary) write(w io.Writer) {
	fmt.Fprintf(w, "submitted: %d  rejected: %d  errors: %d  elapsed: %s\n",
		s.Submitted, s.Rejected, s.Errors, s.Elapsed.Round(time.Millisecond))
	for _, k := range []model.StatusKind{model.KindCompleted, model.KindFailed, model.KindPending, model.KindProcessing} {
		if n := s.ByStatus[k]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", k, n)
		}
	}
	if finished := s.ByStatus[model.KindCompleted] + s.ByStatus[model.KindFailed]; finished > 0 {
		fmt.Fprintf(w, "task duration: avg %s  max %s\n",
			(s.sumTask / time.Duration(finished)).Round(time.Millisecond), s.maxTask.Round(time.Millisecond))
	}
}

// runLoad submits cfg.Tasks tasks with at most cfg.Concurrency in flight and
// waits for each to finish.
func runLoad(ctx context.Context, c *client, cfg loadConfig, logger *slog.Logger) *summary {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		sum = &summary{ByStatus: make(map[model.StatusKind]int)}
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := range cfg.Tasks {
		g.Go(func() error {
			id, err := c.submit(gctx, cfg.Name, i%10)
			if err != nil {
				logger.Warn("submit failed", "index", i, "error", err)
				mu.Lock()
				sum.Rejected++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			sum.Submitted++
			mu.Unlock()

			t, err := c.waitTerminal(gctx, id, cfg.PollInterval)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("task did not finish", "task_id", id, "error", err)
				sum.Errors++
				return nil
			}
			sum.add(t)
			return nil
		})
	}
	g.Wait()

	sum.Elapsed = time.Since(start)
	return sum
}
