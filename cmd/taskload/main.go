// taskload submits a burst of tasks to a running taskengine server, polls each
// one until it finishes and prints a summary.
//
// Usage: go run ./cmd/taskload -n 200 -c 50
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/taskengine/internal/config"
)

func main() {
	var (
		addr    = flag.String("addr", "http://localhost:8080", "server base URL")
		secret  = flag.String("secret", os.Getenv("TASKENGINE_JWT_SECRET"), "HS256 secret for bearer auth")
		cfg     loadConfig
		verbose bool
	)
	flag.IntVar(&cfg.Tasks, "n", 100, "number of tasks to submit")
	flag.IntVar(&cfg.Concurrency, "c", 20, "maximum concurrent requests")
	flag.StringVar(&cfg.Name, "name", "load", "task name")
	flag.DurationVar(&cfg.PollInterval, "poll", 200*time.Millisecond, "status poll interval")
	flag.DurationVar(&cfg.Timeout, "timeout", 5*time.Minute, "overall deadline")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	if cfg.Tasks < 1 || cfg.Concurrency < 1 {
		log.Fatal("-n and -c must be positive")
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := config.NewLogger(os.Stderr, level)

	c, err := newClient(*addr, *secret)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum := runLoad(ctx, c, cfg, logger)
	sum.write(os.Stdout)

	if sum.Rejected > 0 || sum.Errors > 0 {
		os.Exit(1)
	}
}
