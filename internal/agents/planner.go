package agents

import (
	"context"
	"strings"

	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// Planner decomposes a task into ordered steps.
type Planner struct{ base }

// NewPlanner is the planner's Factory.
func NewPlanner(env Env, b Binding) Worker {
	return &Planner{base{env: env, b: b, role: tasks.RolePlanner}}
}

func (w *Planner) Execute(ctx context.Context) error {
	task, err := w.Task()
	if err != nil {
		return err
	}
	if err := w.start(tasks.AgentPlanning); err != nil {
		return err
	}
	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskPlanning)}); err != nil {
		return err
	}

	vars := taskVars(task)
	if w.canUse(tools.WebSearchToolName) {
		_ = w.step("researching", 5)
		research, err := w.research(ctx, task)
		if err != nil {
			return err
		}
		vars["Research"] = research
	}

	_ = w.step("analyzing task", 10)
	answer, err := w.ask(ctx, "planner", vars)
	if err != nil {
		return err
	}

	plan := parsePlan(answer, task.Title)
	w.reason("planned %d steps", len(plan.Steps))
	for _, s := range plan.Steps {
		w.reason("step %s: %s", s.ID, s.Title)
	}

	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{
		Plan:     plan,
		Status:   tasks.Ptr(tasks.TaskPlanning),
		Progress: tasks.Ptr(20),
	}); err != nil {
		return err
	}
	if err := w.addArtifact(artifacts.FromPlan(w.origin(), *plan)); err != nil {
		return err
	}
	return w.finish()
}

// research searches the web for the task title. A failed search is a
// warning; only cancellation aborts.
func (w *Planner) research(ctx context.Context, task tasks.TaskRecord) (string, error) {
	res, err := w.invoke(ctx, task, tools.WebSearchToolName, map[string]any{"query": task.Title})
	if err != nil {
		return "", err
	}
	if !res.Success {
		w.warn("%s: %s", tools.WebSearchToolName, res.Error)
		return "", nil
	}
	w.reason("searched the web for %q", task.Title)
	return strings.TrimSpace(res.Output), nil
}
