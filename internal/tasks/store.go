package tasks

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for any unknown task, agent, artifact or checkpoint id.
	ErrNotFound = errors.New("not found")
	// ErrIncompatibleCheckpoint is returned when a snapshot's schema version is not supported.
	ErrIncompatibleCheckpoint = errors.New("incompatible checkpoint schema")
)

// Listener receives the task view after each successful update.
type Listener func(TaskRecord)

// Persister is a write-through sink for store records. Implementations must
// tolerate being called while the store lock is held and must not call back
// into the store.
type Persister interface {
	SaveTask(t TaskRecord) error
	DeleteTask(id string) error
	SaveCheckpoint(cp Checkpoint) error
	LoadTasks() ([]TaskRecord, error)
	LoadCheckpoints() ([]Checkpoint, error)
}

// TaskUpdate is a shallow-merge patch: non-nil fields overwrite, others are kept.
type TaskUpdate struct {
	Title              *string
	Description        *string
	Status             *TaskStatus
	Progress           *int
	Plan               *Plan
	ImplementationPlan *ImplementationPlan
	CompletedAt        *time.Time
	Context            *TaskContext
}

// AgentUpdate is a shallow-merge patch for an AgentRecord.
type AgentUpdate struct {
	Status      *AgentStatus
	Progress    *int
	CurrentStep *string
	Model       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Ptr returns a pointer to v. It keeps update literals short.
func Ptr[T any](v T) *T { return &v }

// taskRow is the stored form of a task: agents are referenced by id only and
// live in the store's agent arena.
type taskRow struct {
	rec      TaskRecord
	agentIDs []string
}

// Store is the in-memory source of truth for task state. All reads return
// independent copies.
type Store struct {
	mu          sync.RWMutex
	tasks       map[string]*taskRow
	agents      map[string]*AgentRecord
	checkpoints map[string]*Checkpoint
	listeners   map[string]map[int]Listener
	nextSub     int
	persister   Persister
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister writes every mutation through to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tasks:       make(map[string]*taskRow),
		agents:      make(map[string]*AgentRecord),
		checkpoints: make(map[string]*Checkpoint),
		listeners:   make(map[string]map[int]Listener),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates the store from its persister. It is a no-op without one.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	list, err := s.persister.LoadTasks()
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	cps, err := s.persister.LoadCheckpoints()
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range list {
		s.installLocked(t)
	}
	for i := range cps {
		cp := cps[i].Clone()
		s.checkpoints[cp.ID] = &cp
	}
	slog.Debug("state store loaded", "tasks", len(list), "checkpoints", len(cps))
	return nil
}

// CreateTask registers a new pending task. It always succeeds.
func (s *Store) CreateTask(title, description, projectPath string, techStack []string) TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if techStack == nil {
		techStack = []string{}
	}
	row := &taskRow{
		rec: TaskRecord{
			ID:           NewID("task"),
			Title:        title,
			Description:  description,
			Status:       TaskPending,
			Progress:     0,
			Artifacts:    []Artifact{},
			Feedback:     []Feedback{},
			Errors:       []ErrorEntry{},
			ExecutionLog: []ExecutionLogEntry{},
			CreatedAt:    now,
			UpdatedAt:    now,
			Context: TaskContext{
				ProjectPath: projectPath,
				TechStack:   slices.Clone(techStack),
			},
		},
		agentIDs: []string{},
	}
	s.tasks[row.rec.ID] = row

	if err := s.persistLocked(row.rec.ID); err != nil {
		slog.Warn("persist new task", "task_id", row.rec.ID, "error", err)
	}
	return s.viewLocked(row)
}

// CreateAgent creates an idle AgentRecord and appends it to the task's agent list.
func (s *Store) CreateAgent(taskID string, role Role, modelName string) (AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tasks[taskID]
	if !ok {
		return AgentRecord{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	agent := &AgentRecord{
		ID:          NewID("agent"),
		Role:        role,
		TaskID:      taskID,
		Model:       modelName,
		Status:      AgentIdle,
		ArtifactIDs: []string{},
		Errors:      []ErrorEntry{},
		Reasoning:   []string{},
	}
	s.agents[agent.ID] = agent
	row.agentIDs = append(row.agentIDs, agent.ID)
	row.rec.UpdatedAt = s.now()

	if err := s.persistLocked(taskID); err != nil {
		return agent.Clone(), err
	}
	return agent.Clone(), nil
}

// GetTask returns the current view of a task.
func (s *Store) GetTask(taskID string) (TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.tasks[taskID]
	if !ok {
		return TaskRecord{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return s.viewLocked(row), nil
}

// GetAgent returns an agent record by id.
func (s *Store) GetAgent(agentID string) (AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agentID]
	if !ok {
		return AgentRecord{}, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return a.Clone(), nil
}

// ListTasks returns all tasks, most recently updated first.
func (s *Store) ListTasks() []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]TaskRecord, 0, len(s.tasks))
	for _, row := range s.tasks {
		list = append(list, s.viewLocked(row))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

// ListAgents returns every agent in the arena.
func (s *Store) ListAgents() []AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]AgentRecord, 0, len(s.agents))
	for _, a := range s.agents {
		list = append(list, a.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// DeleteTask removes a task and all of its agents. Checkpoints are kept.
func (s *Store) DeleteTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	for _, id := range row.agentIDs {
		delete(s.agents, id)
	}
	delete(s.tasks, taskID)
	delete(s.listeners, taskID)

	if s.persister != nil {
		if err := s.persister.DeleteTask(taskID); err != nil {
			return fmt.Errorf("persist delete %s: %w", taskID, err)
		}
	}
	return nil
}

// UpdateTask merges u into the task and notifies subscribers.
func (s *Store) UpdateTask(taskID string, u TaskUpdate) error {
	s.mu.Lock()
	row, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	rec := &row.rec
	if u.Title != nil {
		rec.Title = *u.Title
	}
	if u.Description != nil {
		rec.Description = *u.Description
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.Progress != nil {
		rec.Progress = *u.Progress
	}
	if u.Plan != nil {
		rec.Plan = u.Plan.Clone()
	}
	if u.ImplementationPlan != nil {
		rec.ImplementationPlan = u.ImplementationPlan.Clone()
	}
	if u.CompletedAt != nil {
		rec.CompletedAt = cloneTime(u.CompletedAt)
	}
	if u.Context != nil {
		rec.Context = u.Context.Clone()
	}
	rec.UpdatedAt = s.now()

	err := s.persistLocked(taskID)
	view := s.viewLocked(row)
	listeners := s.listenersLocked(taskID)
	s.mu.Unlock()

	notify(listeners, view)
	return err
}

// UpdateAgent merges u into the agent record. The task view renders from the
// same arena entry, so both accessors observe the change.
func (s *Store) UpdateAgent(agentID string, u AgentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Progress != nil {
		a.Progress = *u.Progress
	}
	if u.CurrentStep != nil {
		a.CurrentStep = *u.CurrentStep
	}
	if u.Model != nil {
		a.Model = *u.Model
	}
	if u.StartedAt != nil {
		a.StartedAt = cloneTime(u.StartedAt)
	}
	if u.CompletedAt != nil {
		a.CompletedAt = cloneTime(u.CompletedAt)
	}
	if row, ok := s.tasks[a.TaskID]; ok {
		row.rec.UpdatedAt = s.now()
	}
	return s.persistLocked(a.TaskID)
}

// AppendReasoning adds one line to an agent's reasoning trace.
func (s *Store) AppendReasoning(agentID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	a.Reasoning = append(a.Reasoning, line)
	return s.persistLocked(a.TaskID)
}

// AddArtifact appends an artifact to the task and to its producing agent.
func (s *Store) AddArtifact(taskID string, art Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, agent, err := s.rowAndAgentLocked(taskID, art.AgentID)
	if err != nil {
		return err
	}
	art = art.Clone()
	art.TaskID = taskID
	row.rec.Artifacts = append(row.rec.Artifacts, art)
	if agent != nil {
		agent.ArtifactIDs = append(agent.ArtifactIDs, art.ID)
	}
	row.rec.UpdatedAt = s.now()
	return s.persistLocked(taskID)
}

// AddFeedback attaches feedback to an artifact, replacing it with its next
// version, and records the feedback on the task. It returns the new artifact.
func (s *Store) AddFeedback(taskID, artifactID string, fb Feedback) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tasks[taskID]
	if !ok {
		return Artifact{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	idx := slices.IndexFunc(row.rec.Artifacts, func(a Artifact) bool { return a.ID == artifactID })
	if idx < 0 {
		return Artifact{}, fmt.Errorf("artifact %s: %w", artifactID, ErrNotFound)
	}

	now := s.now()
	if fb.ID == "" {
		fb.ID = NewID("fb")
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now
	}
	fb.ArtifactID = artifactID

	next := row.rec.Artifacts[idx].WithFeedback(fb, now)
	row.rec.Artifacts[idx] = next
	row.rec.Feedback = append(row.rec.Feedback, fb)
	row.rec.UpdatedAt = now
	return next.Clone(), s.persistLocked(taskID)
}

// AddError records an error against the task and its originating agent.
func (s *Store) AddError(taskID string, e ErrorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, agent, err := s.rowAndAgentLocked(taskID, e.AgentID)
	if err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = NewID("err")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Severity == "" {
		e.Severity = SeverityError
	}
	if agent != nil && e.Role == "" {
		e.Role = agent.Role
	}
	row.rec.Errors = append(row.rec.Errors, e)
	if agent != nil {
		agent.Errors = append(agent.Errors, e)
	}
	row.rec.UpdatedAt = s.now()
	return s.persistLocked(taskID)
}

// AppendExecutionLog adds an entry to the task's execution log.
func (s *Store) AppendExecutionLog(taskID string, entry ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, _, err := s.rowAndAgentLocked(taskID, entry.AgentID)
	if err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	row.rec.ExecutionLog = append(row.rec.ExecutionLog, entry)
	return s.persistLocked(taskID)
}

// Subscribe registers a listener invoked synchronously after every successful
// UpdateTask or RestoreCheckpoint of taskID. A panicking listener is recovered.
func (s *Store) Subscribe(taskID string, l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.listeners[taskID] == nil {
		s.listeners[taskID] = make(map[int]Listener)
	}
	s.listeners[taskID][id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[taskID], id)
	}
}

func (s *Store) listenersLocked(taskID string) []Listener {
	subs := s.listeners[taskID]
	if len(subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, subs[id])
	}
	return out
}

func notify(listeners []Listener, view TaskRecord) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("task listener panicked", "task_id", view.ID, "panic", r)
				}
			}()
			l(view.Clone())
		}()
	}
}

func (s *Store) rowAndAgentLocked(taskID, agentID string) (*taskRow, *AgentRecord, error) {
	row, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if agentID == "" {
		return row, nil, nil
	}
	agent, ok := s.agents[agentID]
	if !ok || agent.TaskID != taskID {
		return nil, nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return row, agent, nil
}

// viewLocked renders a task with its agents dereferenced from the arena.
func (s *Store) viewLocked(row *taskRow) TaskRecord {
	view := row.rec.Clone()
	view.Agents = make([]AgentRecord, 0, len(row.agentIDs))
	for _, id := range row.agentIDs {
		if a, ok := s.agents[id]; ok {
			view.Agents = append(view.Agents, a.Clone())
		}
	}
	return view
}

// installLocked replaces the live records of t.ID with t (agents included).
func (s *Store) installLocked(t TaskRecord) {
	if old, ok := s.tasks[t.ID]; ok {
		for _, id := range old.agentIDs {
			delete(s.agents, id)
		}
	}
	t = t.Clone()
	row := &taskRow{agentIDs: make([]string, 0, len(t.Agents))}
	for i := range t.Agents {
		a := t.Agents[i]
		s.agents[a.ID] = &a
		row.agentIDs = append(row.agentIDs, a.ID)
	}
	t.Agents = nil
	row.rec = t
	s.tasks[t.ID] = row
}

func (s *Store) persistLocked(taskID string) error {
	if s.persister == nil {
		return nil
	}
	row, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	if err := s.persister.SaveTask(s.viewLocked(row)); err != nil {
		return fmt.Errorf("persist task %s: %w", taskID, err)
	}
	return nil
}
