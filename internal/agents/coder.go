package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// Coder writes every file of the implementation plan through write_file.
// A file that cannot be generated or written is recorded as a warning and
// skipped.
type Coder struct{ base }

// NewCoder is the coder's Factory.
func NewCoder(env Env, b Binding) Worker {
	return &Coder{base{env: env, b: b, role: tasks.RoleCoder}}
}

func (w *Coder) Execute(ctx context.Context) error {
	task, err := w.Task()
	if err != nil {
		return err
	}
	if task.ImplementationPlan == nil {
		return errors.New("implementation plan not found - architect must execute first")
	}
	if _, err := w.env.Prompts.GetTemplateByName("coder"); err != nil {
		return fmt.Errorf("coder: %w", err)
	}
	if err := w.start(tasks.AgentExecuting); err != nil {
		return err
	}
	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{Status: tasks.Ptr(tasks.TaskExecuting)}); err != nil {
		return err
	}

	files := task.ImplementationPlan.Files
	patches := make([]tasks.CodePatch, 0, len(files))
	for i, f := range files {
		_ = w.step(fmt.Sprintf("%s %s", f.Action, f.Path), (i*100)/len(files))
		patch, err := w.apply(ctx, task, f)
		if err != nil {
			return err
		}
		patches = append(patches, patch)
	}

	applied := 0
	for _, p := range patches {
		if p.Applied {
			applied++
		}
	}
	w.reason("applied %d of %d file changes", applied, len(patches))

	if err := w.addArtifact(artifacts.FromCodePatches(w.origin(), patches)); err != nil {
		return err
	}
	if err := w.env.Store.UpdateTask(task.ID, tasks.TaskUpdate{
		Status:   tasks.Ptr(tasks.TaskExecuting),
		Progress: tasks.Ptr(60),
	}); err != nil {
		return err
	}
	return w.finish()
}

// apply produces and writes one file. Only cancellation is returned as an
// error; every other failure is recorded on the patch.
func (w *Coder) apply(ctx context.Context, task tasks.TaskRecord, f tasks.FileChange) (tasks.CodePatch, error) {
	patch := tasks.CodePatch{Path: f.Path, Action: f.Action}

	if f.Action != tasks.FileDelete {
		content, err := w.generate(ctx, task, f)
		if errors.Is(err, ErrCancelled) {
			return patch, err
		}
		if err != nil {
			patch.Error = err.Error()
			w.warn("generate %s: %v", f.Path, err)
			return patch, nil
		}
		patch.Content = content
	}

	res, err := w.invoke(ctx, task, "write_file", map[string]any{
		"path":    f.Path,
		"content": patch.Content,
		"action":  string(f.Action),
	})
	if err != nil {
		return patch, err
	}
	if !res.Success {
		patch.Error = res.Error
		w.warn("write_file %s: %s", f.Path, res.Error)
		return patch, nil
	}
	patch.Applied = true
	w.reason("%s %s", f.Action, f.Path)
	return patch, nil
}

func (w *Coder) generate(ctx context.Context, task tasks.TaskRecord, f tasks.FileChange) (string, error) {
	current := ""
	if f.Action == tasks.FileModify && w.canUse("read_file") {
		res, err := w.invoke(ctx, task, "read_file", map[string]any{"path": f.Path})
		if err != nil {
			return "", err
		}
		var out tools.ReadFileOutput
		if res.Decode(&out) == nil {
			current = out.Content
		}
	}

	vars := taskVars(task)
	vars["ImplementationPlan"] = implementationMarkdown(task)
	vars["Path"] = f.Path
	vars["Action"] = string(f.Action)
	vars["Change"] = f.Description
	vars["Current"] = current
	answer, err := w.ask(ctx, "coder", vars)
	if err != nil {
		return "", err
	}
	return stripFences(answer), nil
}

func implementationMarkdown(task tasks.TaskRecord) string {
	if a, ok := task.LatestArtifact(tasks.ArtifactImplementationPlan); ok {
		if c, ok := a.Content.(*tasks.ImplementationPlanContent); ok {
			return c.Markdown
		}
	}
	var out string
	for _, f := range task.ImplementationPlan.Files {
		out += fmt.Sprintf("- %s %s\n", f.Action, f.Path)
	}
	return out
}
