package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/tasks"
)

// Architect turns the plan into a file-level implementation plan.
type Architect struct{ base }

// NewArchitect is the architect's Factory.
func NewArchitect(env Env, b Binding) Worker {
	return &Architect{base{env: env, b: b, role: tasks.RoleArchitect}}
}

func (w *Architect) Execute(ctx context.Context) error {
	task, err := w.Task()
	if err != nil {
		return err
	}
	if task.Plan == nil {
		return errors.New("plan not found - planner must execute first")
	}
	if err := w.start(tasks.AgentPlanning); err != nil {
		return err
	}

	_ = w.step("designing file changes", 20)
	vars := taskVars(task)
	vars["Plan"] = planMarkdown(task)
	answer, err := w.ask(ctx, "architect", vars)
	if err != nil {
		return err
	}

	impl, err := parseImplementationPlan(answer, task.Plan.Summary)
	if err != nil {
		return fmt.Errorf("architect: %w", err)
	}
	for _, f := range impl.Files {
		w.reason("%s %s", f.Action, f.Path)
	}

	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{
		ImplementationPlan: impl,
		Progress:           tasks.Ptr(40),
	}); err != nil {
		return err
	}
	if err := w.addArtifact(artifacts.FromImplementationPlan(w.origin(), *impl)); err != nil {
		return err
	}
	return w.finish()
}

// planMarkdown prefers the rendered plan artifact over the raw plan.
func planMarkdown(task tasks.TaskRecord) string {
	if a, ok := task.LatestArtifact(tasks.ArtifactPlan); ok {
		if c, ok := a.Content.(*tasks.PlanContent); ok {
			return c.Markdown
		}
	}
	var out string
	for i, s := range task.Plan.Steps {
		out += fmt.Sprintf("%d. %s\n", i+1, s.Title)
	}
	return out
}
