package events

import (
	"errors"
	"reflect"
	"testing"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var received []Event
	bus.Subscribe(func(e Event) {
		received = append(received, e)
	}, EventAgentStarted)

	_ = bus.Publish(NewTypedEvent(SourceOrchestrator, "task_1", AgentStartedPayload{Role: "planner", AgentID: "agent_1"}))
	_ = bus.Publish(NewTypedEvent(SourceOrchestrator, "task_1", TaskStartedPayload{Title: "t"}))

	// Delivery is synchronous: no waiting needed.
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventAgentStarted || received[0].TaskID != "task_1" {
		t.Errorf("unexpected event %+v", received[0])
	}
}

func TestBusDeliveryOrder(t *testing.T) {
	bus := NewBus(8)

	var order []string
	for _, name := range []string{"a", "b", "c", "d"} {
		name := name
		bus.Subscribe(func(Event) { order = append(order, name) })
	}
	_ = bus.Publish(NewEvent(EventTaskStarted, SourceOrchestrator, "t", nil))

	if want := []string{"a", "b", "c", "d"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBusPanickingHandler(t *testing.T) {
	bus := NewBus(8)

	reached := false
	bus.Subscribe(func(Event) { panic("handler failure") })
	bus.Subscribe(func(Event) { reached = true })

	if err := bus.Publish(NewEvent(EventTaskFailed, SourceOrchestrator, "t", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !reached {
		t.Error("handler after a panicking one did not run")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(8)

	count := 0
	unsub := bus.Subscribe(func(Event) { count++ })
	_ = bus.Publish(NewEvent(EventTaskStarted, SourceOrchestrator, "t", nil))
	unsub()
	_ = bus.Publish(NewEvent(EventTaskStarted, SourceOrchestrator, "t", nil))

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestBusClosed(t *testing.T) {
	bus := NewBus(8)
	bus.Close()
	err := bus.Publish(NewEvent(EventTaskStarted, SourceOrchestrator, "t", nil))
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("err = %v, want ErrBusClosed", err)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Add(NewEvent(EventToolInvoked, SourceTools, "", map[string]any{"i": i}))
	}

	events := rb.Get(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Payload["i"] != 2 || events[2].Payload["i"] != 4 {
		t.Errorf("unexpected window: %v .. %v", events[0].Payload, events[2].Payload)
	}
}

func TestTaskHistory(t *testing.T) {
	bus := NewBus(16)
	_ = bus.Publish(NewEvent(EventTaskStarted, SourceOrchestrator, "a", nil))
	_ = bus.Publish(NewEvent(EventTaskStarted, SourceOrchestrator, "b", nil))
	_ = bus.Publish(NewEvent(EventTaskCompleted, SourceOrchestrator, "a", nil))

	got := bus.TaskHistory("a", 0)
	if len(got) != 2 || got[0].Type != EventTaskStarted || got[1].Type != EventTaskCompleted {
		t.Errorf("TaskHistory = %+v", got)
	}
	if last := bus.TaskHistory("a", 1); len(last) != 1 || last[0].Type != EventTaskCompleted {
		t.Errorf("TaskHistory limit 1 = %+v", last)
	}
}

func TestSubscribeChan(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(8, EventAgentCompleted)
	defer unsub()

	_ = bus.Publish(NewTypedEvent(SourceOrchestrator, "t", AgentCompletedPayload{Role: "coder"}))

	select {
	case e := <-ch:
		if e.Type != EventAgentCompleted {
			t.Errorf("expected agent_completed, got %s", e.Type)
		}
	default:
		t.Fatal("event not delivered synchronously")
	}
}

func TestSubscribeChanDropsWhenFull(t *testing.T) {
	bus := NewBus(64)

	ch, unsub := bus.SubscribeChan(2)
	for i := 0; i < 5; i++ {
		_ = bus.Publish(NewEvent(EventToolInvoked, SourceTools, "t", nil))
	}
	if len(ch) != 2 {
		t.Errorf("buffered = %d, want 2", len(ch))
	}
	if got := bus.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}

	unsub()
	unsub() // idempotent
	// Publishing after unsubscribe must not panic on the closed channel.
	_ = bus.Publish(NewEvent(EventToolInvoked, SourceTools, "t", nil))
}

func TestExtractPayload(t *testing.T) {
	e := NewTypedEvent(SourceOrchestrator, "t", AgentFailedPayload{Role: "coder", AgentID: "a1", Error: "boom"})

	p, ok := ExtractPayload[AgentFailedPayload](e)
	if !ok {
		t.Fatal("ExtractPayload failed")
	}
	if p.Role != "coder" || p.Error != "boom" {
		t.Errorf("payload = %+v", p)
	}
	if _, ok := ExtractPayload[TaskStartedPayload](e); ok {
		t.Error("ExtractPayload accepted a mismatched type")
	}
}
