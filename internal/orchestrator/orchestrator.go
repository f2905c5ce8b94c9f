// Package orchestrator drives a task through the role graph: it instantiates
// each role's worker, records failures, and exposes run control (pause,
// resume, cancel), checkpoints and read-only status views.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/forge/internal/agents"
	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/tasks"
)

// DefaultMaxSteps bounds the number of role executions of one run.
const DefaultMaxSteps = 50

// AssistedPolicy decides how an agent-assisted run that saw a worker failure
// ends.
type AssistedPolicy string

const (
	// PolicyLenient leaves the task status to the workers.
	PolicyLenient AssistedPolicy = "lenient"
	// PolicyStrict marks the task failed once the run is over.
	PolicyStrict AssistedPolicy = "strict"
)

// Config holds the orchestrator's collaborators.
type Config struct {
	Env      agents.Env
	Bus      *events.Bus      // nil-safe
	Registry *agents.Registry // defaults to agents.DefaultRegistry()
	Graph    *Graph           // defaults to DefaultGraph()
	Policy   AssistedPolicy
	MaxSteps int
}

// Orchestrator executes tasks. It is safe for concurrent use; runs of
// different tasks proceed independently.
type Orchestrator struct {
	env      agents.Env
	store    *tasks.Store
	bus      *events.Bus
	registry *agents.Registry
	graph    *Graph
	policy   AssistedPolicy
	maxSteps int

	mu   sync.Mutex
	runs map[string]*run
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		env:      cfg.Env,
		store:    cfg.Env.Store,
		bus:      cfg.Bus,
		registry: cfg.Registry,
		graph:    cfg.Graph,
		policy:   cfg.Policy,
		maxSteps: cfg.MaxSteps,
		runs:     make(map[string]*run),
	}
	if o.registry == nil {
		o.registry = agents.DefaultRegistry()
	}
	if o.graph == nil {
		o.graph = DefaultGraph()
	}
	if o.policy == "" {
		o.policy = PolicyLenient
	}
	if o.maxSteps <= 0 {
		o.maxSteps = DefaultMaxSteps
	}
	return o
}

// Store returns the state store the orchestrator writes to.
func (o *Orchestrator) Store() *tasks.Store { return o.store }

// Graph returns the role graph runs walk.
func (o *Orchestrator) Graph() *Graph { return o.graph }

// ExecuteTask runs taskID through the role graph and returns the final task
// record. In agent-driven mode the first worker failure ends the run with a
// *WorkerError; in agent-assisted mode the run continues past failures.
// Cancellation returns ErrCancelled.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID string, mode tasks.ExecutionMode) (tasks.TaskRecord, error) {
	if !mode.Valid() {
		return tasks.TaskRecord{}, fmt.Errorf("unknown execution mode %q", mode)
	}
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return tasks.TaskRecord{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r, err := o.register(taskID, mode, cancel)
	if err != nil {
		return task, err
	}
	defer o.unregister(r)

	slog.Info("task execution started", "task_id", taskID, "mode", mode)
	o.emit(taskID, events.TaskStartedPayload{Title: task.Title, Mode: string(mode), Start: string(o.graph.Start)})
	o.log(taskID, "", "", fmt.Sprintf("execution started (%s)", mode))

	var failures []error
	steps := 0
	for role := o.graph.Start; role != ""; {
		steps++
		if steps > o.maxSteps {
			err := fmt.Errorf("%w: %d role executions", ErrMaxSteps, o.maxSteps)
			return o.fail(taskID, role, err)
		}

		r.setRole(role)
		if err := o.waitIfPaused(ctx, r); err != nil {
			return o.cancelled(taskID, role, "")
		}

		worker, agentID, err := o.worker(r, role)
		if err != nil {
			return o.fail(taskID, role, err)
		}

		o.emit(taskID, events.AgentStartedPayload{Role: string(role), AgentID: agentID})
		o.log(taskID, agentID, role, "started")
		start := time.Now()

		execErr := worker.Execute(ctx)
		switch {
		case execErr == nil:
			d := time.Since(start)
			slog.Info("agent completed", "task_id", taskID, "role", role, "duration", d)
			o.emit(taskID, events.AgentCompletedPayload{Role: string(role), AgentID: agentID, DurationMs: d.Milliseconds()})
			o.log(taskID, agentID, role, "completed")

		case isCancellation(ctx, execErr):
			return o.cancelled(taskID, role, agentID)

		default:
			werr := o.recordFailure(taskID, role, agentID, execErr)
			if mode == tasks.ModeAgentDriven {
				final, _ := o.fail(taskID, role, werr)
				return final, werr
			}
			failures = append(failures, werr)
		}

		task, err = o.store.GetTask(taskID)
		if err != nil {
			return task, err
		}
		role = o.graph.Next(role, task)
	}

	if len(failures) > 0 && o.policy == PolicyStrict {
		err := errors.Join(failures...)
		final, _ := o.fail(taskID, "", err)
		return final, err
	}

	task, err = o.store.GetTask(taskID)
	if err != nil {
		return task, err
	}
	slog.Info("task execution finished", "task_id", taskID, "status", task.Status, "steps", steps)
	o.emit(taskID, events.TaskCompletedPayload{Status: string(task.Status), Progress: task.Progress, Steps: steps})
	o.log(taskID, "", "", fmt.Sprintf("execution finished with status %s", task.Status))
	return task, nil
}

func (o *Orchestrator) register(taskID string, mode tasks.ExecutionMode, cancel context.CancelFunc) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.runs[taskID]; ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrAlreadyRunning)
	}
	r := newRun(taskID, mode, cancel)
	o.runs[taskID] = r
	return r, nil
}

// unregister drops r once ExecuteTask has returned.
func (o *Orchestrator) unregister(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs[r.taskID] == r {
		delete(o.runs, r.taskID)
	}
}

func (o *Orchestrator) lookup(taskID string) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[taskID]
	if !ok || r.isCancelled() {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotRunning)
	}
	return r, nil
}

// worker returns the run's worker for role, creating its agent record on
// first use. A role visited again reuses its worker and agent record.
func (o *Orchestrator) worker(r *run, role tasks.Role) (agents.Worker, string, error) {
	r.mu.Lock()
	b, ok := r.workers[role]
	r.mu.Unlock()
	if ok {
		return b.worker, b.agentID, nil
	}

	agent, err := o.store.CreateAgent(r.taskID, role, o.env.ModelName)
	if err != nil {
		return nil, "", err
	}
	w, err := o.registry.New(role, o.env, agents.Binding{TaskID: r.taskID, AgentID: agent.ID})
	if err != nil {
		return nil, "", err
	}
	r.mu.Lock()
	r.workers[role] = boundWorker{worker: w, agentID: agent.ID}
	r.mu.Unlock()
	return w, agent.ID, nil
}

// waitIfPaused blocks between roles while the run is paused, showing the
// task as paused for the duration.
func (o *Orchestrator) waitIfPaused(ctx context.Context, r *run) error {
	if !r.isPaused() {
		return ctx.Err()
	}
	task, err := o.store.GetTask(r.taskID)
	if err != nil {
		return err
	}
	prev := task.Status
	_ = o.store.UpdateTask(r.taskID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskPaused)})
	slog.Info("task execution paused", "task_id", r.taskID, "role", r.currentRole())

	err = r.wait(ctx)
	if err == nil {
		_ = o.store.UpdateTask(r.taskID, tasks.TaskUpdate{Status: tasks.Ptr(prev)})
	}
	return err
}

// recordFailure stores the single error entry of a failed worker.
func (o *Orchestrator) recordFailure(taskID string, role tasks.Role, agentID string, err error) *WorkerError {
	slog.Error("agent failed", "task_id", taskID, "role", role, "error", err)
	if aerr := o.store.AddError(taskID, tasks.ErrorEntry{
		AgentID:  agentID,
		Role:     role,
		Severity: tasks.SeverityError,
		Message:  err.Error(),
	}); aerr != nil {
		slog.Warn("record agent failure", "task_id", taskID, "error", aerr)
	}
	_ = o.store.UpdateAgent(agentID, tasks.AgentUpdate{
		Status:      tasks.Ptr(tasks.AgentError),
		CompletedAt: tasks.Ptr(time.Now().UTC()),
	})
	o.emit(taskID, events.AgentFailedPayload{Role: string(role), AgentID: agentID, Error: err.Error()})
	o.log(taskID, agentID, role, "failed: "+err.Error())
	return &WorkerError{Role: role, AgentID: agentID, Err: err}
}

// fail marks the task failed and emits task_failed.
func (o *Orchestrator) fail(taskID string, role tasks.Role, err error) (tasks.TaskRecord, error) {
	_ = o.store.UpdateTask(taskID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskFailed)})
	o.emit(taskID, events.TaskFailedPayload{Role: string(role), Error: err.Error()})
	o.log(taskID, "", role, "execution failed: "+err.Error())
	task, gerr := o.store.GetTask(taskID)
	if gerr != nil {
		return task, errors.Join(err, gerr)
	}
	return task, err
}

func (o *Orchestrator) cancelled(taskID string, role tasks.Role, agentID string) (tasks.TaskRecord, error) {
	slog.Info("task execution cancelled", "task_id", taskID, "role", role)
	_ = o.store.AddError(taskID, tasks.ErrorEntry{
		AgentID:  agentID,
		Role:     role,
		Severity: tasks.SeverityWarning,
		Message:  "execution cancelled",
	})
	if agentID != "" {
		_ = o.store.UpdateAgent(agentID, tasks.AgentUpdate{Status: tasks.Ptr(tasks.AgentError)})
	}
	_ = o.store.UpdateTask(taskID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskFailed)})
	o.emit(taskID, events.TaskCancelledPayload{Role: string(role)})
	o.log(taskID, agentID, role, "execution cancelled")
	task, _ := o.store.GetTask(taskID)
	return task, fmt.Errorf("task %s: %w", taskID, ErrCancelled)
}

func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, agents.ErrCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func (o *Orchestrator) emit(taskID string, payload events.EventPayload) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(events.NewTypedEvent(events.SourceOrchestrator, taskID, payload)); err != nil {
		slog.Debug("event not published", "type", payload.EventType(), "error", err)
	}
}

func (o *Orchestrator) log(taskID, agentID string, role tasks.Role, msg string) {
	if err := o.store.AppendExecutionLog(taskID, tasks.ExecutionLogEntry{AgentID: agentID, Role: role, Message: msg}); err != nil {
		slog.Debug("execution log append failed", "task_id", taskID, "error", err)
	}
}
