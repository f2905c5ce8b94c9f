package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	forgemcp "github.com/dohr-michael/forge/internal/mcp"
	"github.com/dohr-michael/forge/internal/tasks"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp-serve",
		Usage: "Expose the tool gateway as an MCP server (stdio)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "role",
				Usage: "Only expose tools available to this role",
			},
		},
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP transport
	level := slog.LevelWarn
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	role := tasks.Role(cmd.String("role"))
	if role != "" && !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	slog.Debug("starting MCP server", "role", role, "tools", len(a.tools.List()))
	server := forgemcp.NewServer(a.tools, role)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
