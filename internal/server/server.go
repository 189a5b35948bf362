// Package server exposes the pipeline over HTTP: a deploy trigger, a per-run
// websocket progress stream, run lookup, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/repodeploy/internal/admission"
	"github.com/example/repodeploy/internal/notify"
	"github.com/example/repodeploy/internal/pipeline"
	"github.com/example/repodeploy/internal/runstore"
)

// Runner executes one pipeline run to completion.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}

// RunReader looks up recorded runs. *runstore.Store satisfies it.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*runstore.Run, error)
	Events(ctx context.Context, runID string) ([]runstore.Event, error)
	ListRuns(ctx context.Context, limit int) ([]runstore.Run, error)
}

type Option func(*Server)

// WithRunReader enables the /api/runs endpoints.
func WithRunReader(reader RunReader) Option {
	return func(s *Server) {
		s.runs = reader
	}
}

// Server is the HTTP trigger surface.
type Server struct {
	addr   string
	logger logr.Logger
	runner Runner
	hub    *notify.Hub
	runs   RunReader

	runCtx context.Context

	mu       sync.Mutex
	draining bool
	pending  sync.WaitGroup
}

// New returns a server that starts runs with runner.
func New(addr string, runner Runner, logger logr.Logger, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		logger: logger,
		runner: runner,
		hub:    notify.NewHub(logger),
		runCtx: context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Hub returns the websocket hub runs are published to.
func (s *Server) Hub() *notify.Hub { return s.hub }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/deploy", s.handleDeploy)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "ok")
	})
	return mux
}

// Run serves until ctx is canceled, then shuts down and waits for in-flight
// runs, which observe the same cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx
	srv := &http.Server{Addr: s.addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	stopped := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.hub.Close()
		close(stopped)
	}()
	s.logger.Info("deploy server listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// Shutdown returns once in-flight handlers are done.
		<-stopped
	}
	s.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Wait refuses further deploy requests and blocks until every started run
// has finished.
func (s *Server) Wait() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.pending.Wait()
}

// startRun registers a run with the pending set. It reports false once the
// server is draining.
func (s *Server) startRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.pending.Add(1)
	return true
}

type deployRequest struct {
	RepoURL string `json:"repoUrl"`
}

type deployResponse struct {
	RunID  string `json:"runId"`
	Events string `json:"events"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Request body must be JSON with a repoUrl field."})
		return
	}
	repoURL := strings.TrimSpace(req.RepoURL)
	if repoURL == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Repository URL is required."})
		return
	}
	if _, err := admission.Check(repoURL); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}

	if !s.startRun() {
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "Server is shutting down."})
		return
	}
	runID := pipeline.NewRunID()
	s.hub.Open(runID)
	go func() {
		defer s.pending.Done()
		defer s.hub.Finish(runID)
		res := s.runner.Run(s.runCtx, pipeline.Request{RepoURL: repoURL, RunID: runID, Sinks: []notify.Sink{s.hub}})
		s.logger.V(1).Info("run finished", "run", runID, "state", res.State, "kind", res.Kind)
	}()
	writeJSON(w, http.StatusAccepted, deployResponse{RunID: runID, Events: "/ws?run=" + runID})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		http.Error(w, "run query parameter is required", http.StatusBadRequest)
		return
	}
	if err := s.hub.ServeWS(w, r, runID); err != nil {
		if errors.Is(err, notify.ErrUnknownRun) {
			http.NotFound(w, r)
			return
		}
		s.logger.V(1).Info("progress websocket ended", "run", runID, "error", err.Error())
	}
}

type runResponse struct {
	Run    *runstore.Run    `json:"run"`
	Events []runstore.Event `json:"events"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Run ledger is disabled."})
		return
	}
	id := r.PathValue("id")
	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Run not found."})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := s.runs.Events(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Events: events})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Run ledger is disabled."})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "limit must be a non-negative integer."})
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []runstore.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
