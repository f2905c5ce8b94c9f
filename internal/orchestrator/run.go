package orchestrator

import (
	"context"
	"sync"

	"github.com/dohr-michael/forge/internal/agents"
	"github.com/dohr-michael/forge/internal/tasks"
)

// run is the in-memory control block of one executing task.
type run struct {
	taskID string
	mode   tasks.ExecutionMode
	cancel context.CancelFunc

	mu        sync.Mutex
	role      tasks.Role
	paused    bool
	cancelled bool
	resume    chan struct{}
	workers   map[tasks.Role]boundWorker
}

// boundWorker pairs a worker with the agent record it writes to.
type boundWorker struct {
	worker  agents.Worker
	agentID string
}

func newRun(taskID string, mode tasks.ExecutionMode, cancel context.CancelFunc) *run {
	return &run{
		taskID:  taskID,
		mode:    mode,
		cancel:  cancel,
		workers: make(map[tasks.Role]boundWorker),
	}
}

func (r *run) setRole(role tasks.Role) {
	r.mu.Lock()
	r.role = role
	r.mu.Unlock()
}

func (r *run) currentRole() tasks.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

// markCancelled reports whether the run was not already cancelled.
func (r *run) markCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return false
	}
	r.cancelled = true
	return true
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *run) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// pause reports whether the run was not already paused.
func (r *run) pause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return false
	}
	r.paused = true
	r.resume = make(chan struct{})
	return true
}

// unpause reports whether the run was paused.
func (r *run) unpause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return false
	}
	r.paused = false
	close(r.resume)
	return true
}

// wait blocks while the run is paused. It returns early with ctx's error.
func (r *run) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		if !r.paused {
			r.mu.Unlock()
			return ctx.Err()
		}
		ch := r.resume
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
