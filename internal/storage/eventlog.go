// Package storage holds durable sinks fed by the event bus.
package storage

import (
	"log/slog"
	"slices"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/storage/dirstore"
)

const (
	globalLog    = "_global"
	eventLogFile = "events.jsonl"
)

// EventLogger appends bus events to <dir>/<task_id>/events.jsonl. Events
// without a task id go to the _global directory.
type EventLogger struct {
	store       *dirstore.DirStore
	exclude     []events.EventType
	unsubscribe func()
}

// NewEventLogger subscribes to every bus event except the excluded types.
func NewEventLogger(dir string, bus *events.Bus, exclude ...events.EventType) *EventLogger {
	el := &EventLogger{
		store:   dirstore.NewDirStore(dir, "event log"),
		exclude: exclude,
	}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if slices.Contains(el.exclude, e.Type) {
		return
	}
	if err := el.append(e); err != nil {
		slog.Warn("event log write failed", "type", e.Type, "task_id", e.TaskID, "error", err)
	}
}

func (el *EventLogger) append(e events.Event) error {
	id := logID(e.TaskID)

	el.store.Lock()
	defer el.store.Unlock()

	if err := el.store.EnsureDir(id); err != nil {
		return err
	}
	return el.store.AppendJSONL(id, eventLogFile, e)
}

func logID(taskID string) string {
	if taskID == "" {
		return globalLog
	}
	return taskID
}

// ReadEventLog returns the logged events of a task in write order. A task
// without a log yields nil.
func ReadEventLog(dir, taskID string) ([]events.Event, error) {
	store := dirstore.NewDirStore(dir, "event log")
	store.RLock()
	defer store.RUnlock()
	return dirstore.LoadJSONL[events.Event](store, logID(taskID), eventLogFile)
}
