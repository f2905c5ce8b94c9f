package commands

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/storage"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect stored tasks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all tasks",
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete a task and its agents",
				ArgsUsage: "<task_id>",
				Action:    runTasksDelete,
			},
			{
				Name:      "events",
				Usage:     "Print the logged events of a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksEvents,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	list := a.store.ListTasks()
	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	tw := newTable("ID", "Status", "Progress", "Agents", "Title")
	for _, t := range list {
		tw.AppendRow(table.Row{t.ID, t.Status, fmt.Sprintf("%d%%", t.Progress), len(t.Agents), t.Title})
	}
	tw.Render()
	return nil
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "tasks show")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.store.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Title:       %s\n", t.Title)
	fmt.Printf("Status:      %s (%d%%)\n", t.Status, t.Progress)
	fmt.Printf("Project:     %s\n", t.Context.ProjectPath)
	fmt.Printf("Created:     %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.Description != "" {
		fmt.Printf("\nDescription:\n%s\n", t.Description)
	}

	if t.Plan != nil && len(t.Plan.Steps) > 0 {
		fmt.Println("\nPlan:")
		for i, step := range t.Plan.Steps {
			fmt.Printf("  %d. %s\n", i+1, step.Title)
		}
	}

	if len(t.Agents) > 0 {
		fmt.Println("\nAgents:")
		for _, ag := range t.Agents {
			fmt.Printf("  %-10s %-22s %3d%%  %s\n", ag.Role, ag.Status, ag.Progress, ag.CurrentStep)
		}
	}

	if len(t.Artifacts) > 0 {
		fmt.Println("\nArtifacts:")
		for _, art := range t.Artifacts {
			fmt.Printf("  %s  %-20s v%d  %s\n", art.ID, art.Type, art.Metadata.Version, art.Metadata.Summary)
		}
	}

	if len(t.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range t.Errors {
			fmt.Printf("  [%s] %s: %s\n", e.Severity, e.Role, e.Message)
		}
	}

	if cps := a.store.ListCheckpoints(taskID); len(cps) > 0 {
		fmt.Println("\nCheckpoints:")
		for _, cp := range cps {
			fmt.Printf("  [%s] %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.ID)
		}
	}
	return nil
}

func runTasksDelete(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "tasks delete")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.DeleteTask(taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	fmt.Printf("Task %s deleted.\n", taskID)
	return nil
}

func runTasksEvents(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "tasks events")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	list, err := storage.ReadEventLog(a.cfg.Events.LogDir, taskID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No events logged.")
		return nil
	}
	for _, e := range list {
		printEvent(e)
	}
	return nil
}
