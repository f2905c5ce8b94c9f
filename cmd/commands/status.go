package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether a forge gateway is running and what it executes",
		Action: func(_ context.Context, cmd *cli.Command) error {
			setupLogging(cmd)
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Gateway: ALIVE (PID %d, %s, uptime %s)\n", hb.PID, hb.Addr, hb.Uptime)
			case heartbeat.StatusStale:
				fmt.Printf("Gateway: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
				return nil
			case heartbeat.StatusDead:
				fmt.Println("Gateway: NOT RUNNING")
				return nil
			}

			if len(hb.RunningTasks) == 0 {
				fmt.Println("No task running.")
				return nil
			}
			fmt.Println("Running tasks:")
			for _, id := range hb.RunningTasks {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}
}
