package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dohr-michael/forge/internal/tasks"
)

var (
	ErrAlreadyRunning = errors.New("task is already running")
	ErrNotRunning     = errors.New("task is not running")
	ErrCancelled      = errors.New("task execution cancelled")
	ErrMaxSteps       = errors.New("step limit exceeded")
)

// WorkerError reports a role worker that failed during a run.
type WorkerError struct {
	Role    tasks.Role
	AgentID string
	Err     error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s worker failed: %v", e.Role, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
