package orchestrator

import (
	"time"

	"github.com/dohr-michael/forge/internal/tasks"
)

// ExecutionStatus is a point-in-time view of one task.
type ExecutionStatus struct {
	TaskID      string                    `json:"task_id"`
	Status      tasks.TaskStatus          `json:"status"`
	Progress    int                       `json:"progress"`
	Running     bool                      `json:"running"`
	Paused      bool                      `json:"paused"`
	Mode        tasks.ExecutionMode       `json:"mode,omitempty"`
	CurrentRole tasks.Role                `json:"current_role,omitempty"`
	Agents      map[tasks.AgentStatus]int `json:"agents"`
	Artifacts   int                       `json:"artifacts"`
	Errors      int                       `json:"errors"`
}

// GetExecutionStatus reports the status of taskID and of its run, if any.
func (o *Orchestrator) GetExecutionStatus(taskID string) (ExecutionStatus, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return ExecutionStatus{}, err
	}
	st := ExecutionStatus{
		TaskID:    task.ID,
		Status:    task.Status,
		Progress:  task.Progress,
		Agents:    make(map[tasks.AgentStatus]int),
		Artifacts: len(task.Artifacts),
		Errors:    len(task.Errors),
	}
	for _, a := range task.Agents {
		st.Agents[a.Status]++
	}
	if r, err := o.lookup(taskID); err == nil {
		st.Running = true
		st.Paused = r.isPaused()
		st.Mode = r.mode
		st.CurrentRole = r.currentRole()
	}
	return st, nil
}

// Statistics aggregates every task and agent in the store.
type Statistics struct {
	Tasks          int                       `json:"tasks"`
	Running        int                       `json:"running"`
	TasksByStatus  map[tasks.TaskStatus]int  `json:"tasks_by_status"`
	Agents         int                       `json:"agents"`
	AgentsByStatus map[tasks.AgentStatus]int `json:"agents_by_status"`
	// TotalDuration and MeanDuration cover agents that both started and
	// completed.
	TotalDuration time.Duration `json:"total_duration"`
	MeanDuration  time.Duration `json:"mean_duration"`
}

// GetStatistics computes store-wide statistics.
func (o *Orchestrator) GetStatistics() Statistics {
	st := Statistics{
		TasksByStatus:  make(map[tasks.TaskStatus]int),
		AgentsByStatus: make(map[tasks.AgentStatus]int),
	}
	for _, t := range o.store.ListTasks() {
		st.Tasks++
		st.TasksByStatus[t.Status]++
	}

	timed := 0
	for _, a := range o.store.ListAgents() {
		st.Agents++
		st.AgentsByStatus[a.Status]++
		if a.StartedAt != nil && a.CompletedAt != nil {
			st.TotalDuration += a.Duration()
			timed++
		}
	}
	if timed > 0 {
		st.MeanDuration = st.TotalDuration / time.Duration(timed)
	}

	st.Running = len(o.RunningTasks())
	return st
}
