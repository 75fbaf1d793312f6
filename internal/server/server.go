// Package server exposes the HTTP surface: the streaming optimize endpoint,
// the synchronous page-fetcher, collaborator CRUD, and health probes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/internal/agent"
	"github.com/rankpilot/rankpilot/internal/pipeline"
	"github.com/rankpilot/rankpilot/internal/userstore"
)

// Deps are the collaborators the server drives. Users may be nil, which
// disables the /users routes.
type Deps struct {
	Pipeline    *pipeline.Pipeline
	Runner      agent.Runner
	PageFetcher *agent.Role
	Users       userstore.Store

	// Reported by the health endpoints.
	OpenAIConfigured  bool
	SerpAPIConfigured bool
}

// Server routes HTTP requests to the pipeline and stores.
type Server struct {
	deps   Deps
	router *mux.Router
	logger *zap.Logger
	http   *http.Server
}

// New builds the router. Pipeline, Runner, and PageFetcher are required.
func New(deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("server: pipeline is nil")
	}
	if deps.Runner == nil || deps.PageFetcher == nil {
		return nil, fmt.Errorf("server: page-fetcher runner and role are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/optimize", s.handleOptimize).Methods(http.MethodPost)
	s.router.HandleFunc("/optimize/health", s.handleOptimizeHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/page-fetcher", s.handlePageFetch).Methods(http.MethodPost)
	s.router.HandleFunc("/page-fetcher/health", s.handlePageFetchHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.deps.Users != nil {
		s.router.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
		s.router.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
		s.router.HandleFunc("/users/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
		s.router.HandleFunc("/users/{id:[0-9]+}", s.handleGetUser).Methods(http.MethodGet)
		s.router.HandleFunc("/users/{id:[0-9]+}", s.handleUpdateUser).Methods(http.MethodPut)
		s.router.HandleFunc("/users/{id:[0-9]+}", s.handleDeleteUser).Methods(http.MethodDelete)
	}
}

// ServeHTTP implements http.Handler so the server can sit behind httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start blocks serving on addr until Shutdown or failure.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the optimize endpoint holds its response open
		// for the lifetime of a run.
	}
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// decodeJSON reads one JSON value, capping the body at 1 MiB.
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
