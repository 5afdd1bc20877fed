// Package server exposes build orchestration over a local JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/verforge/verforge/internal/cli/output"
	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/engine"
	"github.com/verforge/verforge/internal/state"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Server serves the build API for one engine.
type Server struct {
	engine   *engine.Engine
	mapper   *coords.Mapper
	store    state.Store
	host     string
	port     int
	watch    bool
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last *output.BuildOutput
}

// Config holds configuration for the API server.
type Config struct {
	Engine *engine.Engine
	// Mapper resolves plugin ids (optional, every id passes through if nil).
	Mapper *coords.Mapper
	// Store serves run history (optional).
	Store state.Store
	// Host defaults to localhost.
	Host string
	Port int
	// Watch rebuilds whenever the shared tree changes.
	Watch    bool
	Debounce time.Duration
	Logger   *slog.Logger
}

// New creates a new API server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mapper := cfg.Mapper
	if mapper == nil {
		mapper, _ = coords.New(nil, nil)
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = engine.DefaultDebounce
	}

	return &Server{
		engine:   cfg.Engine,
		mapper:   mapper,
		store:    cfg.Store,
		host:     host,
		port:     cfg.Port,
		watch:    cfg.Watch,
		debounce: debounce,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/targets", s.handleTargets)
		r.Get("/check", s.handleCheck)
		r.Get("/expand", s.handleExpand)
		r.Get("/resolve/{id}", s.handleResolve)

		r.Route("/builds", func(r chi.Router) {
			r.Post("/", s.handleBuild)
			r.Get("/latest", s.handleLatestBuild)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Use(s.requireStore)
			r.Get("/", s.handleRuns)
			r.Get("/latest", s.handleLatestRun)
			r.Get("/{id}", s.handleRun)
		})
	})

	return r
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.Info("starting API server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Rebuild on change
	if s.watch {
		eg.Go(func() error {
			return s.engine.Watch(egctx, s.debounce, s.record)
		})
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// record keeps the outcome of the most recent build.
func (s *Server) record(sum *engine.Summary, err error) {
	if err != nil {
		s.logger.Warn("build failed", "error", err)
	}
	if sum == nil {
		return
	}
	out := output.NewBuildOutput(sum)
	s.mu.Lock()
	s.last = &out
	s.mu.Unlock()
}

// lastBuild returns the most recent build, or nil before the first one.
func (s *Server) lastBuild() *output.BuildOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// requestLogger logs every request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// requireStore rejects history requests when history is disabled.
func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("run history is disabled"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
