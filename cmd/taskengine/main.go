package main

import (
	"context"
	"log"
	"os"

	"github.com/seantiz/taskengine/internal/api"
	"github.com/seantiz/taskengine/internal/config"
	"github.com/seantiz/taskengine/internal/engine"
	"github.com/seantiz/taskengine/internal/executor"
	"github.com/seantiz/taskengine/internal/history"
	"github.com/seantiz/taskengine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("taskengine: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"queue_size", cfg.QueueSize,
		"workers", cfg.WorkerCount,
	)

	var (
		hist history.Store
		rec  engine.Recorder
	)
	if cfg.DBPath != "" {
		db, err := history.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		hist, rec = db, db
	} else {
		logger.Warn("history disabled, finished tasks are kept in memory only")
	}

	reg := executor.NewRegistry(executor.Sleep{Delay: cfg.WorkDelay})
	reg.Register("fail", executor.Fail{Delay: cfg.WorkDelay, Reason: "simulated failure"})

	eng := engine.NewEngine(store.NewMemoryStore(), reg, rec, logger, engine.Config{
		QueueSize: cfg.QueueSize,
		Workers:   cfg.WorkerCount,
	})

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(context.Background())
	}()

	srv := api.NewServer(api.Config{
		Addr:          cfg.ListenAddr,
		SubmitTimeout: cfg.SubmitTimeout,
		JWTSecret:     cfg.JWTSecret,
	}, eng, hist, logger)

	serveErr := srv.Run(context.Background())

	// The HTTP side has stopped taking requests; let queued tasks finish.
	logger.Info("draining task queue", "queued", eng.QueueLen())
	eng.Close()
	if err := <-engineDone; err != nil {
		logger.Error("engine error", "error", err)
	}

	if serveErr != nil {
		log.Fatalf("server error: %v", serveErr)
	}
}
