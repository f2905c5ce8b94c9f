// Package tasks holds the engine's data model and the State Store that owns
// task, agent, artifact and checkpoint records.
package tasks

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is one of the fixed worker kinds of the pipeline.
type Role string

const (
	RolePlanner   Role = "planner"
	RoleArchitect Role = "architect"
	RoleCoder     Role = "coder"
	RoleTester    Role = "tester"
	RoleReviewer  Role = "reviewer"
)

// AllRoles returns every role in default pipeline order.
func AllRoles() []Role {
	return []Role{RolePlanner, RoleArchitect, RoleCoder, RoleTester, RoleReviewer}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return slices.Contains(AllRoles(), r)
}

// TaskStatus represents the lifecycle state of a task.
// It is advisory: whichever worker ran last sets it.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskPlanning  TaskStatus = "planning"
	TaskExecuting TaskStatus = "executing"
	TaskVerifying TaskStatus = "verifying"
	TaskComplete  TaskStatus = "complete"
	TaskFailed    TaskStatus = "failed"
	TaskPaused    TaskStatus = "paused"
)

// AgentStatus represents the execution state of one worker within a task.
type AgentStatus string

const (
	AgentIdle               AgentStatus = "idle"
	AgentPlanning           AgentStatus = "planning"
	AgentExecuting          AgentStatus = "executing"
	AgentWaitingForFeedback AgentStatus = "waiting_for_feedback"
	AgentComplete           AgentStatus = "complete"
	AgentError              AgentStatus = "error"
)

// Severity grades an ErrorEntry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ExecutionMode governs whether a role failure aborts the task.
type ExecutionMode string

const (
	ModeAgentDriven   ExecutionMode = "agent-driven"
	ModeAgentAssisted ExecutionMode = "agent-assisted"
)

// Valid reports whether m is a known execution mode.
func (m ExecutionMode) Valid() bool {
	return m == ModeAgentDriven || m == ModeAgentAssisted
}

// TaskContext describes the project a task operates on.
type TaskContext struct {
	ProjectPath     string   `json:"project_path"`
	TechStack       []string `json:"tech_stack"`
	CodebaseSummary string   `json:"codebase_summary,omitempty"`
	KnownPatterns   []string `json:"known_patterns,omitempty"`
	KnowledgeRefs   []string `json:"knowledge_refs,omitempty"`
}

func (c TaskContext) Clone() TaskContext {
	c.TechStack = slices.Clone(c.TechStack)
	c.KnownPatterns = slices.Clone(c.KnownPatterns)
	c.KnowledgeRefs = slices.Clone(c.KnowledgeRefs)
	return c
}

// Feedback is a human or automated remark attached to an artifact.
type Feedback struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	Author     string    `json:"author,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrorEntry records a failure against a task and, optionally, an agent.
type ErrorEntry struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionLogEntry is one line of a task's execution log.
type ExecutionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Message   string    `json:"message"`
}

// PlanStep is a single step of a task plan.
type PlanStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Plan is the planner's decomposition of a task.
type Plan struct {
	Summary string     `json:"summary"`
	Steps   []PlanStep `json:"steps"`
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = slices.Clone(p.Steps)
	return &c
}

// FileAction is the kind of change an implementation plan makes to a file.
type FileAction string

const (
	FileCreate FileAction = "create"
	FileModify FileAction = "modify"
	FileDelete FileAction = "delete"
)

// FileChange is one file-level entry of an implementation plan.
type FileChange struct {
	Path        string     `json:"path"`
	Action      FileAction `json:"action"`
	Description string     `json:"description,omitempty"`
}

// ImplementationPlan is the architect's file-level design.
type ImplementationPlan struct {
	Summary string       `json:"summary"`
	Files   []FileChange `json:"files"`
}

func (p *ImplementationPlan) Clone() *ImplementationPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Files = slices.Clone(p.Files)
	return &c
}

// AgentRecord is one worker's execution state within a task.
type AgentRecord struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	TaskID      string       `json:"task_id"`
	Model       string       `json:"model,omitempty"`
	Status      AgentStatus  `json:"status"`
	Progress    int          `json:"progress"`
	CurrentStep string       `json:"current_step,omitempty"`
	ArtifactIDs []string     `json:"artifact_ids"`
	Errors      []ErrorEntry `json:"errors"`
	Reasoning   []string     `json:"reasoning"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

func (a AgentRecord) Clone() AgentRecord {
	a.ArtifactIDs = slices.Clone(a.ArtifactIDs)
	a.Errors = slices.Clone(a.Errors)
	a.Reasoning = slices.Clone(a.Reasoning)
	a.StartedAt = cloneTime(a.StartedAt)
	a.CompletedAt = cloneTime(a.CompletedAt)
	return a
}

// Duration returns how long the agent ran, or zero if it never completed.
func (a AgentRecord) Duration() time.Duration {
	if a.StartedAt == nil || a.CompletedAt == nil {
		return 0
	}
	return a.CompletedAt.Sub(*a.StartedAt)
}

// TaskRecord is the top-level unit of work. Agents is a rendered view of the
// store's agent arena; mutating it has no effect on the store.
type TaskRecord struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Status             TaskStatus          `json:"status"`
	Progress           int                 `json:"progress"`
	Plan               *Plan               `json:"plan,omitempty"`
	ImplementationPlan *ImplementationPlan `json:"implementation_plan,omitempty"`
	Agents             []AgentRecord       `json:"agents"`
	Artifacts          []Artifact          `json:"artifacts"`
	Feedback           []Feedback          `json:"feedback"`
	Errors             []ErrorEntry        `json:"errors"`
	ExecutionLog       []ExecutionLogEntry `json:"execution_log"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	Context            TaskContext         `json:"context"`
}

func (t TaskRecord) Clone() TaskRecord {
	t.Plan = t.Plan.Clone()
	t.ImplementationPlan = t.ImplementationPlan.Clone()
	if t.Agents != nil {
		agents := make([]AgentRecord, len(t.Agents))
		for i, a := range t.Agents {
			agents[i] = a.Clone()
		}
		t.Agents = agents
	}
	if t.Artifacts != nil {
		arts := make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			arts[i] = a.Clone()
		}
		t.Artifacts = arts
	}
	t.Feedback = slices.Clone(t.Feedback)
	t.Errors = slices.Clone(t.Errors)
	t.ExecutionLog = slices.Clone(t.ExecutionLog)
	t.CompletedAt = cloneTime(t.CompletedAt)
	t.Context = t.Context.Clone()
	return t
}

// Artifact returns the artifact with the given id, if present.
func (t TaskRecord) Artifact(id string) (Artifact, bool) {
	for _, a := range t.Artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return Artifact{}, false
}

// LatestArtifact returns the most recently added artifact of the given type.
func (t TaskRecord) LatestArtifact(typ ArtifactType) (Artifact, bool) {
	for i := len(t.Artifacts) - 1; i >= 0; i-- {
		if t.Artifacts[i].Type == typ {
			return t.Artifacts[i], true
		}
	}
	return Artifact{}, false
}

// AgentFor returns the latest agent record for a role.
func (t TaskRecord) AgentFor(role Role) (AgentRecord, bool) {
	for i := len(t.Agents) - 1; i >= 0; i-- {
		if t.Agents[i].Role == role {
			return t.Agents[i], true
		}
	}
	return AgentRecord{}, false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// NewID returns an identifier with the given prefix, e.g. "task_1a2b3c4d".
func NewID(prefix string) string {
	u := uuid.New().String()
	return prefix + "_" + strings.ReplaceAll(u[:8], "-", "")
}
