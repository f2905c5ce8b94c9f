package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/forge/internal/orchestrator"
	"github.com/dohr-michael/forge/internal/tasks"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ProjectPath string   `json:"project_path"`
	TechStack   []string `json:"tech_stack"`
}

// ExecuteRequest is the body of POST /api/tasks/{id}/execute.
type ExecuteRequest struct {
	Mode tasks.ExecutionMode `json:"mode"`
}

// ResumeRequest is the body of POST /api/tasks/{id}/resume.
type ResumeRequest struct {
	Feedback string `json:"feedback"`
}

// FeedbackRequest is the body of POST .../artifacts/{aid}/feedback.
type FeedbackRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	// an empty body keeps the defaults
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list := s.store.ListTasks()
	if list == nil {
		list = []tasks.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	task := s.store.CreateTask(req.Title, req.Description, req.ProjectPath, req.TechStack)
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if s.orch.IsRunning(taskID) {
		writeError(w, http.StatusConflict, fmt.Errorf("task %s: %w", taskID, orchestrator.ErrAlreadyRunning))
		return
	}
	if err := s.store.DeleteTask(taskID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute starts a run in the background and answers 202 at once.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	req := ExecuteRequest{Mode: tasks.ModeAgentDriven}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown execution mode %q", req.Mode))
		return
	}
	if _, err := s.store.GetTask(taskID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if s.orch.IsRunning(taskID) {
		writeError(w, http.StatusConflict, fmt.Errorf("task %s: %w", taskID, orchestrator.ErrAlreadyRunning))
		return
	}

	go func() {
		task, err := s.orch.ExecuteTask(s.baseCtx, taskID, req.Mode)
		if err != nil {
			slog.Warn("task execution ended with error", "task_id", taskID, "status", task.Status, "error", err)
			return
		}
		slog.Info("task execution finished", "task_id", taskID, "status", task.Status)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "mode": string(req.Mode)})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.orch.PauseExecution(chi.URLParam(r, "taskID")))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.control(w, s.orch.ResumeExecution(chi.URLParam(r, "taskID"), req.Feedback))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.orch.CancelExecution(chi.URLParam(r, "taskID")))
}

func (s *Server) control(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.orch.GetExecutionStatus(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.orch.ExportExecutionReport(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(report))
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, err := s.store.GetTask(taskID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	list := s.store.ListCheckpoints(taskID)
	if list == nil {
		list = []tasks.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := s.orch.CreateCheckpoint(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"checkpoint_id": id})
}

func (s *Server) handleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.RestoreCheckpoint(chi.URLParam(r, "checkpointID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}
	art, err := s.store.AddFeedback(chi.URLParam(r, "taskID"), chi.URLParam(r, "artifactID"), tasks.Feedback{
		Author:  req.Author,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}
