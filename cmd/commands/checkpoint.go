package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/secrets"
)

// NewCheckpointCommand returns the checkpoint subcommand.
func NewCheckpointCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkpoint",
		Usage: "Snapshot, restore and move task state",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Snapshot a task",
				ArgsUsage: "<task_id>",
				Action:    runCheckpointCreate,
			},
			{
				Name:      "restore",
				Usage:     "Replace a task with a snapshot",
				ArgsUsage: "<checkpoint_id>",
				Action:    runCheckpointRestore,
			},
			{
				Name:      "list",
				Usage:     "List the checkpoints of a task",
				ArgsUsage: "<task_id>",
				Action:    runCheckpointList,
			},
			{
				Name:      "export",
				Usage:     "Write the checkpoints of a task to a bundle",
				ArgsUsage: "<task_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (default stdout)",
					},
					&cli.BoolFlag{
						Name:  "encrypt",
						Usage: "Encrypt the bundle to the local age key",
					},
				},
				Action: runCheckpointExport,
			},
			{
				Name:      "import",
				Usage:     "Load checkpoints from a bundle",
				ArgsUsage: "<file>",
				Action:    runCheckpointImport,
			},
		},
	}
}

func runCheckpointCreate(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "checkpoint create")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.orch.CreateCheckpoint(taskID)
	if err != nil {
		return err
	}
	fmt.Printf("Checkpoint %s created.\n", id)
	return nil
}

func runCheckpointRestore(ctx context.Context, cmd *cli.Command) error {
	cpID, err := requireArg(cmd, "<checkpoint_id>", "checkpoint restore")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.orch.RestoreCheckpoint(cpID)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s restored to %s (status %s).\n", task.ID, cpID, task.Status)
	return nil
}

func runCheckpointList(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "checkpoint list")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	cps := a.store.ListCheckpoints(taskID)
	if len(cps) == 0 {
		fmt.Println("No checkpoints.")
		return nil
	}
	for _, cp := range cps {
		fmt.Printf("%s  %s  %s (%d artifacts)\n", cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Task.Status, len(cp.Task.Artifacts))
	}
	return nil
}

func runCheckpointExport(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "checkpoint export")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	cps := a.store.ListCheckpoints(taskID)
	if len(cps) == 0 {
		return fmt.Errorf("task %s has no checkpoints", taskID)
	}

	var recipient age.Recipient
	if cmd.Bool("encrypt") {
		identity, err := secrets.LoadIdentity(config.KeyPath())
		if err != nil {
			return fmt.Errorf("%w (run forge init)", err)
		}
		recipient = identity.Recipient()
	}

	var w io.Writer = os.Stdout
	if out := cmd.String("out"); out != "" {
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("create bundle: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := secrets.WriteBundle(w, cps, recipient); err != nil {
		return err
	}
	if out := cmd.String("out"); out != "" {
		fmt.Fprintf(os.Stderr, "Exported %d checkpoints to %s.\n", len(cps), out)
	}
	return nil
}

func runCheckpointImport(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "<file>", "checkpoint import")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	var identity age.Identity
	if _, err := os.Stat(config.KeyPath()); err == nil {
		id, err := secrets.LoadIdentity(config.KeyPath())
		if err != nil {
			return err
		}
		identity = id
	}
	bundle, err := secrets.ReadBundle(f, identity)
	if err != nil {
		return err
	}
	for _, cp := range bundle.Checkpoints {
		if err := a.store.ImportCheckpoint(cp); err != nil {
			return err
		}
		fmt.Printf("Imported %s (task %s).\n", cp.ID, cp.TaskID)
	}
	return nil
}
