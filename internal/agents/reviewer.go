package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/batch"
	"github.com/dohr-michael/forge/internal/tasks"
)

// Reviewer reviews each applied patch and writes the final walkthrough.
type Reviewer struct{ base }

// NewReviewer is the reviewer's Factory.
func NewReviewer(env Env, b Binding) Worker {
	return &Reviewer{base{env: env, b: b, role: tasks.RoleReviewer}}
}

func (w *Reviewer) Execute(ctx context.Context) error {
	task, err := w.Task()
	if err != nil {
		return err
	}
	art, ok := task.LatestArtifact(tasks.ArtifactCodePatch)
	if !ok {
		return errors.New("code patches not found - coder must execute first")
	}
	content, _ := art.Content.(*tasks.CodePatchContent)
	if content == nil {
		return errors.New("code patches not found - coder must execute first")
	}
	if _, err := w.env.Prompts.GetTemplateByName("reviewer"); err != nil {
		return fmt.Errorf("reviewer: %w", err)
	}
	if err := w.start(tasks.AgentExecuting); err != nil {
		return err
	}

	_ = w.step(fmt.Sprintf("reviewing %d changes", len(content.Patches)), 10)
	jobs := make([]batch.Job[string], len(content.Patches))
	for i, p := range content.Patches {
		jobs[i] = func(ctx context.Context) (string, error) {
			if !p.Applied {
				return "Not applied: " + p.Error, nil
			}
			vars := taskVars(task)
			vars["Path"] = p.Path
			vars["Action"] = string(p.Action)
			vars["Content"] = p.Content
			return w.ask(ctx, "reviewer", vars)
		}
	}
	results := batch.Run(ctx, w.env.ReviewConcurrency, jobs)

	sections := []tasks.Section{{Heading: "Summary", Body: summaryBody(task, content.Patches)}}
	for i, r := range results {
		p := content.Patches[i]
		if errors.Is(r.Err, ErrCancelled) {
			return r.Err
		}
		if errors.Is(r.Err, context.Canceled) {
			return fmt.Errorf("%w: %v", ErrCancelled, r.Err)
		}
		body := r.Value
		if r.Err != nil {
			w.warn("review %s: %v", p.Path, r.Err)
			body = "Review unavailable: " + r.Err.Error()
		}
		sections = append(sections, tasks.Section{Heading: fmt.Sprintf("%s %s", p.Action, p.Path), Body: body})
	}
	if t, ok := task.LatestArtifact(tasks.ArtifactReasoning); ok {
		sections = append(sections, tasks.Section{Heading: "Verification", Body: t.Metadata.Summary})
	}
	w.reason("reviewed %d changes", len(content.Patches))

	if err := w.addArtifact(artifacts.FromWalkthrough(w.origin(), task.Title, sections)); err != nil {
		return err
	}
	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{
		Status:      tasks.Ptr(tasks.TaskComplete),
		Progress:    tasks.Ptr(100),
		CompletedAt: tasks.Ptr(time.Now().UTC()),
	}); err != nil {
		return err
	}
	return w.finish()
}

func summaryBody(task tasks.TaskRecord, patches []tasks.CodePatch) string {
	applied := 0
	for _, p := range patches {
		if p.Applied {
			applied++
		}
	}
	body := fmt.Sprintf("%d of %d changes applied.", applied, len(patches))
	if task.Plan != nil && task.Plan.Summary != "" {
		body = task.Plan.Summary + "\n\n" + body
	}
	if n := len(task.Errors); n > 0 {
		body += fmt.Sprintf(" %d issue(s) recorded during execution.", n)
	}
	return body
}
