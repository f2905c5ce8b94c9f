package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskStartedPayload struct {
	Title string `json:"title"`
	Mode  string `json:"mode"`
	Start string `json:"start_role"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskCompletedPayload struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Steps    int    `json:"steps"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	Role  string `json:"role,omitempty"`
	Error string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type TaskCancelledPayload struct {
	Role string `json:"role,omitempty"`
}

func (TaskCancelledPayload) EventType() EventType { return EventTaskCancelled }

// =============================================================================
// AGENT EVENTS
// =============================================================================

type AgentStartedPayload struct {
	Role    string `json:"role"`
	AgentID string `json:"agent_id"`
}

func (AgentStartedPayload) EventType() EventType { return EventAgentStarted }

type AgentCompletedPayload struct {
	Role       string `json:"role"`
	AgentID    string `json:"agent_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (AgentCompletedPayload) EventType() EventType { return EventAgentCompleted }

type AgentFailedPayload struct {
	Role    string `json:"role"`
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

func (AgentFailedPayload) EventType() EventType { return EventAgentFailed }

// =============================================================================
// RUN CONTROL EVENTS
// =============================================================================

type ExecutionPausedPayload struct {
	Role string `json:"role,omitempty"`
}

func (ExecutionPausedPayload) EventType() EventType { return EventExecutionPaused }

type ExecutionResumedPayload struct {
	Feedback string `json:"feedback,omitempty"`
}

func (ExecutionResumedPayload) EventType() EventType { return EventExecutionResumed }

type ExecutionCancelledPayload struct {
	Role string `json:"role,omitempty"`
}

func (ExecutionCancelledPayload) EventType() EventType { return EventExecutionCancelled }

// =============================================================================
// CHECKPOINT EVENTS
// =============================================================================

type CheckpointCreatedPayload struct {
	CheckpointID string `json:"checkpoint_id"`
}

func (CheckpointCreatedPayload) EventType() EventType { return EventCheckpointCreated }

type CheckpointRestoredPayload struct {
	CheckpointID string `json:"checkpoint_id"`
}

func (CheckpointRestoredPayload) EventType() EventType { return EventCheckpointRestored }

// =============================================================================
// TOOL EVENTS
// =============================================================================

type ToolInvokedPayload struct {
	Tool       string `json:"tool"`
	Role       string `json:"role,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (ToolInvokedPayload) EventType() EventType { return EventToolInvoked }

// =============================================================================
// MODEL EVENTS
// =============================================================================

// Model call phases.
const (
	ModelPhaseRequest  = "request"
	ModelPhaseResponse = "response"
	ModelPhaseError    = "error"
)

type ModelCallPayload struct {
	Phase        string `json:"phase"`
	Model        string `json:"model"`
	Role         string `json:"role,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (ModelCallPayload) EventType() EventType { return EventModelCall }

// =============================================================================
// HELPERS
// =============================================================================

// NewTypedEvent creates an event from a typed payload.
func NewTypedEvent(source EventSource, taskID string, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		TaskID:    taskID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// ExtractPayload decodes an event payload back into its typed form.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
