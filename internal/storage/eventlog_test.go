package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dohr-michael/forge/internal/events"
)

func TestEventLogger_GlobalEvents(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	_ = bus.Publish(events.Event{
		ID:        "evt-1",
		Type:      events.EventToolInvoked,
		Timestamp: time.Now(),
		Source:    events.SourceTools,
	})

	data, err := os.ReadFile(filepath.Join(dir, globalLog, eventLogFile))
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	var got events.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "evt-1" || got.Type != events.EventToolInvoked {
		t.Errorf("logged %+v", got)
	}
}

func TestEventLogger_PerTaskLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	_ = bus.Publish(events.NewEvent(events.EventAgentStarted, events.SourceOrchestrator, "task_abc", nil))
	_ = bus.Publish(events.NewEvent(events.EventAgentCompleted, events.SourceOrchestrator, "task_abc", nil))
	_ = bus.Publish(events.NewEvent(events.EventAgentStarted, events.SourceOrchestrator, "task_def", nil))

	got, err := ReadEventLog(dir, "task_abc")
	if err != nil {
		t.Fatalf("ReadEventLog: %v", err)
	}
	if len(got) != 2 || got[0].Type != events.EventAgentStarted || got[1].Type != events.EventAgentCompleted {
		t.Errorf("task_abc log = %+v", got)
	}

	other, err := ReadEventLog(dir, "task_def")
	if err != nil {
		t.Fatalf("ReadEventLog: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("task_def log has %d events, want 1", len(other))
	}
}

func TestEventLogger_Exclude(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus, events.EventToolInvoked)
	defer el.Close()

	_ = bus.Publish(events.NewEvent(events.EventToolInvoked, events.SourceTools, "task_x", nil))

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no log dirs, got %d", len(entries))
	}
}

func TestReadEventLog_Missing(t *testing.T) {
	got, err := ReadEventLog(t.TempDir(), "task_none")
	if err != nil {
		t.Fatalf("ReadEventLog: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
