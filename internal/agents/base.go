package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/artifacts"
	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// base holds the plumbing shared by every worker.
type base struct {
	env  Env
	b    Binding
	role tasks.Role
}

func (w *base) Role() tasks.Role { return w.role }

func (w *base) Task() (tasks.TaskRecord, error) {
	return w.env.Store.GetTask(w.b.TaskID)
}

func (w *base) origin() artifacts.Origin {
	return artifacts.Origin{TaskID: w.b.TaskID, AgentID: w.b.AgentID}
}

// scope decorates ctx with the task id, role and project root tools use.
func (w *base) scope(ctx context.Context, task tasks.TaskRecord) context.Context {
	ctx = events.ContextWithTaskID(ctx, task.ID)
	ctx = events.ContextWithRole(ctx, string(w.role))
	return events.ContextWithWorkDir(ctx, task.Context.ProjectPath)
}

func (w *base) start(status tasks.AgentStatus) error {
	return w.env.Store.UpdateAgent(w.b.AgentID, tasks.AgentUpdate{
		Status:    tasks.Ptr(status),
		StartedAt: tasks.Ptr(time.Now().UTC()),
	})
}

func (w *base) finish() error {
	return w.env.Store.UpdateAgent(w.b.AgentID, tasks.AgentUpdate{
		Status:      tasks.Ptr(tasks.AgentComplete),
		Progress:    tasks.Ptr(100),
		CurrentStep: tasks.Ptr("done"),
		CompletedAt: tasks.Ptr(time.Now().UTC()),
	})
}

func (w *base) step(label string, progress int) error {
	return w.env.Store.UpdateAgent(w.b.AgentID, tasks.AgentUpdate{
		CurrentStep: tasks.Ptr(label),
		Progress:    tasks.Ptr(progress),
	})
}

func (w *base) reason(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if err := w.env.Store.AppendReasoning(w.b.AgentID, line); err != nil {
		slog.Warn("append reasoning", "agent_id", w.b.AgentID, "error", err)
	}
}

// warn records a swallowed failure against the task and the agent.
func (w *base) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn("worker step failed", "task_id", w.b.TaskID, "role", w.role, "message", msg)
	err := w.env.Store.AddError(w.b.TaskID, tasks.ErrorEntry{
		AgentID:  w.b.AgentID,
		Role:     w.role,
		Severity: tasks.SeverityWarning,
		Message:  msg,
	})
	if err != nil {
		slog.Warn("record worker error", "task_id", w.b.TaskID, "error", err)
	}
}

func (w *base) addArtifact(a tasks.Artifact) error {
	if err := w.env.Store.AddArtifact(w.b.TaskID, a); err != nil {
		return fmt.Errorf("%s: store artifact: %w", w.role, err)
	}
	return nil
}

// checkCancelled is called at every suspension point.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// ask renders the named template and sends it to the model. A missing
// template is returned as is; it is fatal to the calling worker.
func (w *base) ask(ctx context.Context, template string, vars map[string]any) (string, error) {
	if err := checkCancelled(ctx); err != nil {
		return "", err
	}
	tmpl, err := w.env.Prompts.GetTemplateByName(template)
	if err != nil {
		return "", fmt.Errorf("%s: %w", w.role, err)
	}
	prompt, err := w.env.Prompts.Render(tmpl.ID, vars)
	if err != nil {
		return "", fmt.Errorf("%s: %w", w.role, err)
	}
	if w.env.Model == nil {
		return "", fmt.Errorf("%s: no model configured", w.role)
	}

	msgs := []*schema.Message{schema.UserMessage(prompt)}
	if tmpl.System != "" {
		msgs = append([]*schema.Message{schema.SystemMessage(tmpl.System)}, msgs...)
	}
	out, err := w.env.Model.Complete(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return "", fmt.Errorf("%s: %w", w.role, err)
	}
	return out, nil
}

// invoke calls a tool on behalf of the worker's role.
func (w *base) invoke(ctx context.Context, task tasks.TaskRecord, name string, params map[string]any) (tools.ToolInvocationResult, error) {
	if err := checkCancelled(ctx); err != nil {
		return tools.ToolInvocationResult{}, err
	}
	if w.env.Tools == nil {
		return tools.ToolInvocationResult{}, fmt.Errorf("%s: no tool gateway", w.role)
	}
	res := w.env.Tools.InvokeAs(w.scope(ctx, task), w.role, name, params)
	if !res.Success && ctx.Err() != nil {
		return res, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	return res, nil
}

// canUse reports whether the gateway exposes name to this role.
func (w *base) canUse(name string) bool {
	return w.env.Tools != nil && w.env.Tools.AvailableTo(w.role, name)
}

func taskVars(t tasks.TaskRecord) map[string]any {
	stack := t.Context.TechStack
	if stack == nil {
		stack = []string{}
	}
	return map[string]any{
		"Title":       t.Title,
		"Description": t.Description,
		"ProjectPath": t.Context.ProjectPath,
		"TechStack":   stack,
	}
}
