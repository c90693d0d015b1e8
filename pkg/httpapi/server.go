// Package httpapi exposes the playbook generation service over HTTP:
// account registration and login, asynchronous generation runs with
// progress polling, playbook retrieval, and credit accounting.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"messagecraft/pkg/auth"
	"messagecraft/pkg/logx"
	"messagecraft/pkg/metrics"
	"messagecraft/pkg/persistence"
	"messagecraft/pkg/pipeline"
	"messagecraft/pkg/version"
)

// Generator runs one playbook generation. *pipeline.Runner satisfies it;
// tests substitute their own.
type Generator interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.State, error)
}

// Options configures the server.
type Options struct {
	// Usage is optional; without it the usage endpoint reports 503.
	Usage *metrics.QueryService
	// GenerationTimeout bounds one full pipeline run.
	GenerationTimeout time.Duration
	// QualityThreshold and MaxReflectionCycles are passed to every run.
	QualityThreshold    float64
	MaxReflectionCycles int
}

// Server is the HTTP API server.
type Server struct {
	store     *persistence.Store
	authSvc   *auth.Service
	generator Generator
	usage     *metrics.QueryService
	logger    *logx.Logger
	opts      Options

	baseCtx context.Context
	cancel  context.CancelFunc
	runs    sync.WaitGroup
}

// NewServer creates the API server.
func NewServer(store *persistence.Store, authSvc *auth.Service, generator Generator, opts Options) *Server {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:     store,
		authSvc:   authSvc,
		generator: generator,
		usage:     opts.Usage,
		logger:    logx.NewLogger("httpapi"),
		opts:      opts,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.requireAuth(s.handleLogout))

	mux.HandleFunc("/api/generate", s.requireAuth(s.handleGenerate))
	mux.HandleFunc("/api/sessions/", s.requireAuth(s.handleSession))

	mux.HandleFunc("/api/playbooks", s.requireAuth(s.handlePlaybooks))
	mux.HandleFunc("/api/playbooks/", s.requireAuth(s.handlePlaybook))

	mux.HandleFunc("/api/credits", s.requireAuth(s.handleCredits))

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// Shutdown stops accepting new generation runs and waits for in-flight
// ones to finish, up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requireAuth wraps a handler with bearer token authentication.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *persistence.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}

		user, err := s.authSvc.Authenticate(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
