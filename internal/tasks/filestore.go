package tasks

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/forge/internal/storage/dirstore"
)

// FileStore persists tasks as directories:
//
//	<dir>/tasks/<task_id>/meta.json         task record without agents
//	<dir>/tasks/<task_id>/agents.json       the task's agent records, in order
//	<dir>/checkpoints/<task_id>/<cp_id>.json
//
// Checkpoints live outside the task directory so they survive DeleteTask.
type FileStore struct {
	tasks       *dirstore.DirStore
	checkpoints *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{
		tasks:       dirstore.NewDirStore(filepath.Join(baseDir, "tasks"), "task"),
		checkpoints: dirstore.NewDirStore(filepath.Join(baseDir, "checkpoints"), "checkpoint"),
	}
}

// SaveTask writes the task view to disk.
func (fs *FileStore) SaveTask(t TaskRecord) error {
	fs.tasks.Lock()
	defer fs.tasks.Unlock()

	if err := fs.tasks.EnsureDir(t.ID); err != nil {
		return err
	}
	agents := t.Agents
	if agents == nil {
		agents = []AgentRecord{}
	}
	t.Agents = nil
	if err := fs.tasks.WriteJSON(t.ID, "agents.json", agents); err != nil {
		return err
	}
	return fs.tasks.WriteMeta(t.ID, t)
}

// DeleteTask removes a task directory.
func (fs *FileStore) DeleteTask(id string) error {
	fs.tasks.Lock()
	defer fs.tasks.Unlock()
	return fs.tasks.RemoveDir(id)
}

// SaveCheckpoint writes a checkpoint snapshot.
func (fs *FileStore) SaveCheckpoint(cp Checkpoint) error {
	fs.checkpoints.Lock()
	defer fs.checkpoints.Unlock()

	if err := fs.checkpoints.EnsureDir(cp.TaskID); err != nil {
		return err
	}
	return fs.checkpoints.WriteJSON(cp.TaskID, cp.ID+".json", cp)
}

// LoadTasks reads every task on disk. Unreadable task directories are skipped.
func (fs *FileStore) LoadTasks() ([]TaskRecord, error) {
	fs.tasks.RLock()
	defer fs.tasks.RUnlock()

	dirs, err := fs.tasks.ListDirs()
	if err != nil {
		return nil, err
	}

	var list []TaskRecord
	for _, id := range dirs {
		var t TaskRecord
		if err := fs.tasks.ReadMeta(id, &t); err != nil {
			slog.Warn("skip unreadable task", "task_id", id, "error", err)
			continue
		}
		var agents []AgentRecord
		if err := fs.tasks.ReadJSON(id, "agents.json", &agents); err != nil && !errors.Is(err, dirstore.ErrNotExist) {
			slog.Warn("skip unreadable agents", "task_id", id, "error", err)
			continue
		}
		if agents == nil {
			agents = []AgentRecord{}
		}
		t.Agents = agents
		list = append(list, t)
	}
	return list, nil
}

// LoadCheckpoints reads every checkpoint on disk.
func (fs *FileStore) LoadCheckpoints() ([]Checkpoint, error) {
	fs.checkpoints.RLock()
	defer fs.checkpoints.RUnlock()

	dirs, err := fs.checkpoints.ListDirs()
	if err != nil {
		return nil, err
	}

	var list []Checkpoint
	for _, taskID := range dirs {
		names, err := fs.checkpoints.ListFiles(taskID, ".", ".json")
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			var cp Checkpoint
			if err := fs.checkpoints.ReadJSON(taskID, name, &cp); err != nil {
				slog.Warn("skip unreadable checkpoint", "file", name, "error", err)
				continue
			}
			if cp.ID != strings.TrimSuffix(name, ".json") {
				return nil, fmt.Errorf("checkpoint file %s holds id %s", name, cp.ID)
			}
			list = append(list, cp)
		}
	}
	return list, nil
}

var _ Persister = (*FileStore)(nil)
