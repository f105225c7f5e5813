package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/lifecycle"
	"github.com/JakeFAU/linkloader/internal/media"
	"github.com/JakeFAU/linkloader/internal/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// LinkExtractor finds the first supported link in free text.
type LinkExtractor interface {
	Extract(text string) (string, bool)
}

// JobHandler runs one accepted link to completion.
type JobHandler interface {
	Handle(ctx context.Context, job lifecycle.Job) lifecycle.Report
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Config controls the adapter.
type Config struct {
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Deps are the collaborators of a Server. Checks may be empty.
type Deps struct {
	Links       LinkExtractor
	Jobs        JobHandler
	Requests    media.RequestStore
	Preferences media.PreferenceStore
	IDs         media.IDGenerator
	Clock       media.Clock
	Checks      map[string]ReadinessCheck
	Logger      *zap.Logger
}

// Server wires HTTP handlers to the pipeline and stores.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger

	// base outlives individual HTTP requests; handlers run on it.
	base     context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Links == nil:
		return nil, errors.New("link extractor is required")
	case deps.Jobs == nil:
		return nil, errors.New("job handler is required")
	case deps.Requests == nil:
		return nil, errors.New("request store is required")
	case deps.Preferences == nil:
		return nil, errors.New("preference store is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{deps: deps, logger: logger, base: base, cancel: cancel}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/links", s.submitLink)
		r.Get("/requests/{request_id}", s.getRequest)
		r.Route("/users/{requester_id}/preferences", func(r chi.Router) {
			r.Get("/", s.getPreferences)
			r.Post("/{flag}/toggle", s.togglePreference)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown waits for accepted links to finish. When ctx ends first the
// remaining handlers are cancelled and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("wait for in-flight links: %w", ctx.Err())
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.deps.Checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
