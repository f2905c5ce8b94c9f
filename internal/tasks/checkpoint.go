package tasks

import (
	"fmt"
	"sort"
	"time"
)

// CheckpointSchemaVersion is the snapshot layout produced by this engine.
// Restore rejects snapshots carrying any other version.
const CheckpointSchemaVersion = 1

// Checkpoint is an immutable snapshot of one task and all of its agents.
type Checkpoint struct {
	ID            string     `json:"id"`
	SchemaVersion int        `json:"schema_version"`
	TaskID        string     `json:"task_id"`
	CreatedAt     time.Time  `json:"created_at"`
	Task          TaskRecord `json:"task"`
}

func (c Checkpoint) Clone() Checkpoint {
	c.Task = c.Task.Clone()
	return c
}

// CreateCheckpoint deep-copies the task and its agents and returns the checkpoint id.
func (s *Store) CreateCheckpoint(taskID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	cp := &Checkpoint{
		ID:            NewID("cp"),
		SchemaVersion: CheckpointSchemaVersion,
		TaskID:        taskID,
		CreatedAt:     s.now(),
		Task:          s.viewLocked(row),
	}
	s.checkpoints[cp.ID] = cp

	if s.persister != nil {
		if err := s.persister.SaveCheckpoint(cp.Clone()); err != nil {
			return cp.ID, fmt.Errorf("persist checkpoint %s: %w", cp.ID, err)
		}
	}
	return cp.ID, nil
}

// RestoreCheckpoint replaces the live records of the checkpointed task with
// the snapshot and notifies subscribers. It returns the task id.
func (s *Store) RestoreCheckpoint(checkpointID string) (string, error) {
	s.mu.Lock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNotFound)
	}
	if cp.SchemaVersion != CheckpointSchemaVersion {
		s.mu.Unlock()
		return "", fmt.Errorf("checkpoint %s has schema %d, want %d: %w",
			checkpointID, cp.SchemaVersion, CheckpointSchemaVersion, ErrIncompatibleCheckpoint)
	}

	s.installLocked(cp.Task)
	row := s.tasks[cp.TaskID]
	err := s.persistLocked(cp.TaskID)
	view := s.viewLocked(row)
	listeners := s.listenersLocked(cp.TaskID)
	s.mu.Unlock()

	notify(listeners, view)
	return cp.TaskID, err
}

// GetCheckpoint returns a copy of a stored checkpoint.
func (s *Store) GetCheckpoint(checkpointID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNotFound)
	}
	return cp.Clone(), nil
}

// ListCheckpoints returns the checkpoints of a task, oldest first.
// An empty taskID lists every checkpoint.
func (s *Store) ListCheckpoints(taskID string) []Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []Checkpoint
	for _, cp := range s.checkpoints {
		if taskID != "" && cp.TaskID != taskID {
			continue
		}
		list = append(list, cp.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// ImportCheckpoint stores an externally loaded snapshot so it can be restored.
func (s *Store) ImportCheckpoint(cp Checkpoint) error {
	if cp.ID == "" || cp.TaskID == "" {
		return fmt.Errorf("import checkpoint: id and task id are required")
	}
	if cp.SchemaVersion != CheckpointSchemaVersion {
		return fmt.Errorf("import checkpoint %s has schema %d: %w", cp.ID, cp.SchemaVersion, ErrIncompatibleCheckpoint)
	}
	if cp.Task.ID != cp.TaskID {
		return fmt.Errorf("import checkpoint %s: task id mismatch %q != %q", cp.ID, cp.Task.ID, cp.TaskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := cp.Clone()
	s.checkpoints[c.ID] = &c
	if s.persister != nil {
		if err := s.persister.SaveCheckpoint(c.Clone()); err != nil {
			return fmt.Errorf("persist checkpoint %s: %w", c.ID, err)
		}
	}
	return nil
}
