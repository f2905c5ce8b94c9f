package orchestrator

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/tasks"
)

// PauseExecution asks the run of taskID to stop before its next role. The
// role currently executing finishes first.
func (o *Orchestrator) PauseExecution(taskID string) error {
	r, err := o.lookup(taskID)
	if err != nil {
		return err
	}
	if !r.pause() {
		return nil
	}
	slog.Info("pause requested", "task_id", taskID, "role", r.currentRole())
	o.emit(taskID, events.ExecutionPausedPayload{Role: string(r.currentRole())})
	o.log(taskID, "", r.currentRole(), "execution paused")
	return nil
}

// ResumeExecution releases a paused run. Non-empty feedback is appended to
// the task's execution log.
func (o *Orchestrator) ResumeExecution(taskID, feedback string) error {
	r, err := o.lookup(taskID)
	if err != nil {
		return err
	}
	if feedback != "" {
		o.log(taskID, "", "", "feedback: "+feedback)
	}
	if !r.unpause() {
		return nil
	}
	slog.Info("execution resumed", "task_id", taskID)
	o.emit(taskID, events.ExecutionResumedPayload{Feedback: feedback})
	o.log(taskID, "", "", "execution resumed")
	return nil
}

// CancelExecution cancels the run of taskID. The run observes the
// cancellation at its next suspension point and stays registered until it
// has unwound, so a new ExecuteTask on the task fails with ErrAlreadyRunning
// in the meantime. Control calls treat a cancelled run as not running.
func (o *Orchestrator) CancelExecution(taskID string) error {
	r, err := o.lookup(taskID)
	if err != nil {
		return err
	}
	if !r.markCancelled() {
		return fmt.Errorf("task %s: %w", taskID, ErrNotRunning)
	}

	r.cancel()
	slog.Info("cancel requested", "task_id", taskID, "role", r.currentRole())
	o.emit(taskID, events.ExecutionCancelledPayload{Role: string(r.currentRole())})
	return nil
}

// IsRunning reports whether taskID has a registered run, including a
// cancelled one that has not returned yet.
func (o *Orchestrator) IsRunning(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[taskID]
	return ok
}

// RunningTasks returns the ids of the tasks with an active, uncancelled run.
func (o *Orchestrator) RunningTasks() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.runs))
	for id, r := range o.runs {
		if !r.isCancelled() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CreateCheckpoint snapshots taskID and returns the checkpoint id.
func (o *Orchestrator) CreateCheckpoint(taskID string) (string, error) {
	id, err := o.store.CreateCheckpoint(taskID)
	if err != nil {
		return "", err
	}
	o.emit(taskID, events.CheckpointCreatedPayload{CheckpointID: id})
	return id, nil
}

// RestoreCheckpoint replaces the task's live state with the snapshot and
// returns the restored task. A task with a registered run cannot be
// restored: its workers are bound to the agent records the restore replaces.
func (o *Orchestrator) RestoreCheckpoint(checkpointID string) (tasks.TaskRecord, error) {
	cp, err := o.store.GetCheckpoint(checkpointID)
	if err != nil {
		return tasks.TaskRecord{}, err
	}

	// Held across the restore so no run can register in between.
	o.mu.Lock()
	if _, ok := o.runs[cp.TaskID]; ok {
		o.mu.Unlock()
		return tasks.TaskRecord{}, fmt.Errorf("restore task %s: %w", cp.TaskID, ErrAlreadyRunning)
	}
	taskID, err := o.store.RestoreCheckpoint(checkpointID)
	o.mu.Unlock()
	if err != nil {
		return tasks.TaskRecord{}, err
	}
	o.emit(taskID, events.CheckpointRestoredPayload{CheckpointID: checkpointID})
	return o.store.GetTask(taskID)
}
