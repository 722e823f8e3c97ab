package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/taskengine/internal/engine"
	"github.com/seantiz/taskengine/internal/history"
)

const (
	shutdownTimeout      = 10 * time.Second
	readHeaderTimeout    = 10 * time.Second
	writeTimeout         = 30 * time.Second
	defaultSubmitTimeout = 5 * time.Second
)

// Config holds the HTTP server settings.
type Config struct {
	Addr string

	// SubmitTimeout bounds how long a submission waits for room on a full
	// queue before the request fails with 503.
	SubmitTimeout time.Duration

	// JWTSecret enables HS256 bearer-token auth on /v1/tasks when non-empty.
	JWTSecret string
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router        *chi.Mux
	engine        *engine.Engine
	history       history.Store
	auth          *tokenAuth
	logger        *slog.Logger
	addr          string
	submitTimeout time.Duration
}

// NewServer creates and configures a new HTTP server. hist may be nil, in
// which case the history and stats routes report that history is disabled.
func NewServer(cfg Config, eng *engine.Engine, hist history.Store, logger *slog.Logger) *Server {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}

	srv := &Server{
		router:        chi.NewRouter(),
		engine:        eng,
		history:       hist,
		logger:        logger,
		addr:          cfg.Addr,
		submitTimeout: cfg.SubmitTimeout,
	}
	if cfg.JWTSecret != "" {
		srv.auth = newTokenAuth(cfg.JWTSecret, srv)
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(instrument)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/executors", s.handleListExecutors)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Get("/v1/history", s.handleListHistory)

	s.router.Route("/v1/tasks", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.authenticate)
		}
		r.Post("/", s.handleSubmitTask)
		r.Post("/batch", s.handleBatchSubmit)
		r.Get("/", s.handleListTasks)
		r.Get("/{id}", s.handleGetTask)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received
// or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
