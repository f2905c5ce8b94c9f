package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/orchestrator"
	"github.com/dohr-michael/forge/internal/tasks"
)

// NewRunCommand returns the subcommand that creates and executes a task.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Create a task and run it through the pipeline",
		ArgsUsage: "<title>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "What the task should achieve",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project directory tools operate in",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:  "stack",
				Usage: "Technology in use (repeatable)",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Execution mode: agent-driven or agent-assisted (defaults to engine.mode)",
			},
			&cli.StringFlag{
				Name:  "task",
				Usage: "Re-run an existing task instead of creating one",
			},
		},
		Action: runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, appOptions{withModel: true})
	if err != nil {
		return err
	}
	defer a.close()

	mode := tasks.ExecutionMode(a.cfg.Engine.Mode)
	if cmd.IsSet("mode") {
		mode = tasks.ExecutionMode(cmd.String("mode"))
	}
	if !mode.Valid() {
		return fmt.Errorf("unknown execution mode %q", mode)
	}

	var task tasks.TaskRecord
	if id := cmd.String("task"); id != "" {
		if task, err = a.store.GetTask(id); err != nil {
			return err
		}
	} else {
		title := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
		if title == "" {
			return fmt.Errorf("usage: forge run <title>")
		}
		project, err := filepath.Abs(cmd.String("project"))
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}
		task = a.store.CreateTask(title, cmd.String("description"), project, cmd.StringSlice("stack"))
	}
	fmt.Printf("Task %s (%s)\n", task.ID, mode)

	unsubscribe := a.bus.Subscribe(func(e events.Event) {
		if e.TaskID == task.ID {
			printEvent(e)
		}
	})
	defer unsubscribe()

	final, err := a.orch.ExecuteTask(ctx, task.ID, mode)
	fmt.Printf("\nStatus: %s (%d%%), %d artifacts, %d errors\n",
		final.Status, final.Progress, len(final.Artifacts), len(final.Errors))
	if errors.Is(err, orchestrator.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "Execution cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Report: forge report %s\n", task.ID)
	return nil
}

func printEvent(e events.Event) {
	var detail []string
	for _, k := range []string{"role", "status", "error", "duration_ms", "checkpoint_id"} {
		if v, ok := e.Payload[k]; ok && v != "" {
			detail = append(detail, fmt.Sprintf("%s=%v", k, v))
		}
	}
	fmt.Printf("  %s  %-20s %s\n", e.Timestamp.Format("15:04:05"), e.Type, strings.Join(detail, " "))
}
