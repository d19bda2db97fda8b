// Package server provides the HTTP API that triggers imports.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/logflow/reportflow/pkg/checkpoint"
	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/pipeline"
	"github.com/logflow/reportflow/pkg/watermark"
)

// DefaultMaxBodyBytes caps request bodies when Config leaves it unset.
const DefaultMaxBodyBytes = 10 << 20

// Config configures a Server.
type Config struct {
	MaxBodyBytes int64
}

// Server handles HTTP requests for imports, watermarks and runs.
type Server struct {
	runner *pipeline.Runner
	mux    *http.ServeMux
	cfg    Config
}

// NewServer creates a new HTTP server around runner.
func NewServer(runner *pipeline.Runner, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		runner: runner,
		mux:    http.NewServeMux(),
		cfg:    cfg,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /{$}", s.handleImport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/watermarks", s.handleWatermarks)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	s.mux.ServeHTTP(rec, r)

	slog.DebugContext(r.Context(), "http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// handleImport runs one import invocation.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Run-ID", res.RunID)
	jsonResponse(w, map[string]interface{}{
		"tables": res.Tables,
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"})
}

// handleWatermarks returns the last_report rows of a project and dataset.
func (s *Server) handleWatermarks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	marks, err := s.runner.Watermarks(r.Context(), q.Get("gcp_project"), q.Get("gcp_dataset"))
	if err != nil {
		writeError(w, err)
		return
	}

	entries := marks.Entries()
	if entries == nil {
		entries = []watermark.Entry{}
	}
	jsonResponse(w, map[string]interface{}{
		"watermarks": entries,
	})
}

// handleRuns lists recent journal records.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.runner.Journal().Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*checkpoint.Run{}
	}
	jsonResponse(w, map[string]interface{}{
		"runs": runs,
	})
}

// handleRun returns one journal record.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	journal := s.runner.Journal()
	if !journal.Enabled() {
		jsonError(w, "run journal is disabled", http.StatusNotFound)
		return
	}

	run, err := journal.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, os.ErrNotExist) {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, run)
}

// Helper functions

// statusCode maps configuration errors to 400 and everything else to 500.
func statusCode(err error) int {
	if rferrors.CategoryOf(err) == rferrors.CategoryConfiguration {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusCode(err))
}

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
