package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/dohr-michael/forge/internal/tasks"
)

// ExportExecutionReport renders taskID as a markdown report.
func (o *Orchestrator) ExportExecutionReport(taskID string) (string, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return "", err
	}
	return RenderReport(task), nil
}

// RenderReport renders a task record as markdown.
func RenderReport(t tasks.TaskRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Execution Report: %s\n\n", t.Title)
	fmt.Fprintf(&sb, "- **Task:** `%s`\n", t.ID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", t.Status)
	fmt.Fprintf(&sb, "- **Progress:** %d%%\n", t.Progress)
	fmt.Fprintf(&sb, "- **Created:** %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Fprintf(&sb, "- **Completed:** %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if t.Context.ProjectPath != "" {
		fmt.Fprintf(&sb, "- **Project:** `%s`\n", t.Context.ProjectPath)
	}
	if len(t.Context.TechStack) > 0 {
		fmt.Fprintf(&sb, "- **Tech stack:** %s\n", strings.Join(t.Context.TechStack, ", "))
	}
	if t.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", t.Description)
	}

	if t.Plan != nil {
		sb.WriteString("\n## Plan\n\n")
		if t.Plan.Summary != "" {
			sb.WriteString(t.Plan.Summary + "\n\n")
		}
		for i, s := range t.Plan.Steps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Title)
		}
	}

	if len(t.Agents) > 0 {
		sb.WriteString("\n## Agents\n\n| Role | Status | Progress | Duration | Model |\n|---|---|---|---|---|\n")
		for _, a := range t.Agents {
			d := "-"
			if a.StartedAt != nil && a.CompletedAt != nil {
				d = a.Duration().Round(time.Millisecond).String()
			}
			fmt.Fprintf(&sb, "| %s | %s | %d%% | %s | %s |\n", a.Role, a.Status, a.Progress, d, a.Model)
		}
	}

	if len(t.Artifacts) > 0 {
		sb.WriteString("\n## Artifacts\n\n")
		for _, a := range t.Artifacts {
			fmt.Fprintf(&sb, "- `%s` **%s** v%d: %s\n", a.ID, a.Type, a.Metadata.Version, a.Metadata.Summary)
		}
	}

	if len(t.Errors) > 0 {
		sb.WriteString("\n## Errors\n\n")
		for _, e := range t.Errors {
			role := ""
			if e.Role != "" {
				role = " (" + string(e.Role) + ")"
			}
			fmt.Fprintf(&sb, "- **%s**%s %s\n", e.Severity, role, e.Message)
		}
	}

	if len(t.ExecutionLog) > 0 {
		sb.WriteString("\n## Execution Log\n\n")
		for _, l := range t.ExecutionLog {
			who := ""
			if l.Role != "" {
				who = " [" + string(l.Role) + "]"
			}
			fmt.Fprintf(&sb, "- %s%s %s\n", l.Timestamp.Format(time.TimeOnly), who, l.Message)
		}
	}
	return sb.String()
}
