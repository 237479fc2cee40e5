// Package api exposes the read-only operator HTTP interface: middleware
// stats, live checkpoints, and the failed-task queue.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/collector"
	"github.com/liblib-tools/collector/internal/metrics"
	"github.com/liblib-tools/collector/internal/state"
)

// Server wires HTTP handlers to the session and stores.
type Server struct {
	router      chi.Router
	session     *collector.Session
	checkpoints *state.CheckpointStore
	queue       *state.FailedTaskQueue
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	session *collector.Session,
	checkpoints *state.CheckpointStore,
	queue *state.FailedTaskQueue,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		session:     session,
		checkpoints: checkpoints,
		queue:       queue,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.getStats)
		r.Get("/checkpoints", s.listCheckpoints)
		r.Get("/checkpoints/{task_type}", s.getCheckpoint)
		r.Get("/failed-tasks", s.listFailedTasks)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.GetStats())
}

func (s *Server) listCheckpoints(w http.ResponseWriter, _ *http.Request) {
	points, err := s.checkpoints.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	taskType := chi.URLParam(r, "task_type")
	rp, ok, err := s.checkpoints.Load(taskType)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no checkpoint for task type"})
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (s *Server) listFailedTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []state.FailedTask
		err   error
	)
	if r.URL.Query().Get("due") == "true" {
		tasks, err = s.queue.DueTasks()
	} else {
		tasks, err = s.queue.All()
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tasks == nil {
		tasks = []state.FailedTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.logger.Error("request failed", zap.Error(err))
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
