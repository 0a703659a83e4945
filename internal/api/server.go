// Package api exposes the HTTP interface for the email finder service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/batch"
	"github.com/passivleads/emailfinder/internal/config"
	"github.com/passivleads/emailfinder/internal/discovery"
	"github.com/passivleads/emailfinder/internal/ledger"
	"github.com/passivleads/emailfinder/internal/metrics"
	"github.com/passivleads/emailfinder/internal/progress"
)

// Crawler is the discovery surface the handlers consume. Satisfied by
// *discovery.Finder.
type Crawler interface {
	Discover(ctx context.Context, address string) ([]string, error)
	Crawl(ctx context.Context, address string, opts discovery.Options) (discovery.Result, error)
}

// IDGenerator issues job identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Deps carries the collaborators the server wires into handlers.
type Deps struct {
	Crawler Crawler
	Emitter progress.Emitter
	Ledger  ledger.Ledger
	Store   batch.ArtifactStore
	IDGen   IDGenerator
	Clock   batch.Clock
	Logger  *zap.Logger
}

// Server wires HTTP handlers to the batch pipeline and crawler.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Noop{}
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/process-csv-stream", s.streamCSV)
		r.Post("/process-csv", s.processCSV)
		r.Get("/find-emails", s.findEmails)
		r.Post("/find-emails", s.findEmails)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "emailfinder"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The pipeline holds no cross-request state; readiness mirrors liveness.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE endpoint streaming behind the wrapper.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
