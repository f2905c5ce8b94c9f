// Package gateway exposes the orchestrator over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/gateway/ws"
	"github.com/dohr-michael/forge/internal/orchestrator"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// DefaultPort is the port the gateway listens on when none is configured.
const DefaultPort = 18430

// Server is the forge gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	orch       *orchestrator.Orchestrator
	store      *tasks.Store
	tools      *tools.Gateway

	// runs outlive the request that started them
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewServer creates a new gateway server. tools may be nil.
func NewServer(bus *events.Bus, orch *orchestrator.Orchestrator, tg *tools.Gateway, host string, port int) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		hub:     ws.NewHub(bus, orch),
		bus:     bus,
		orch:    orch,
		store:   orch.Store(),
		tools:   tg,
		baseCtx: ctx,
		stop:    stop,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/stats", s.handleStats)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", s.handleGetTask)
			r.Delete("/", s.handleDeleteTask)
			r.Post("/execute", s.handleExecute)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/cancel", s.handleCancel)
			r.Get("/status", s.handleStatus)
			r.Get("/report", s.handleReport)
			r.Get("/checkpoints", s.handleListCheckpoints)
			r.Post("/checkpoints", s.handleCreateCheckpoint)
			r.Post("/artifacts/{artifactID}/feedback", s.handleFeedback)
		})
	})
	r.Post("/api/checkpoints/{checkpointID}/restore", s.handleRestoreCheckpoint)

	r.Get("/api/tools", s.handleTools)
	r.Get("/api/tools/history", s.handleToolHistory)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("forge gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown cancels in-flight runs and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	var history []events.Event
	if taskID := r.URL.Query().Get("task_id"); taskID != "" {
		history = s.bus.TaskHistory(taskID, limit)
	} else {
		history = s.bus.History(limit)
	}
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.GetStatistics())
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("tool gateway not available"))
		return
	}
	var specs []tools.ToolSpec
	if role := tasks.Role(r.URL.Query().Get("role")); role != "" {
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown role %q", role))
			return
		}
		specs = s.tools.ListForRole(role)
	} else {
		specs = s.tools.List()
	}
	if specs == nil {
		specs = []tools.ToolSpec{}
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) handleToolHistory(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("tool gateway not available"))
		return
	}
	history := s.tools.History(queryInt(r, "limit", 50))
	if history == nil {
		history = []tools.ToolInvocationResult{}
	}
	writeJSON(w, http.StatusOK, history)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrAlreadyRunning), errors.Is(err, orchestrator.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, tasks.ErrIncompatibleCheckpoint):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
