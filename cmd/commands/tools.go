package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/forge/internal/tasks"
	"github.com/dohr-michael/forge/internal/tools"
)

// NewToolsCommand returns the tools subcommand.
func NewToolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "List the tools roles may call",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "role",
				Usage: "Only show tools available to this role",
			},
		},
		Action: runTools,
	}
}

func runTools(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	var specs []tools.ToolSpec
	if role := tasks.Role(cmd.String("role")); role != "" {
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", role)
		}
		specs = a.tools.ListForRole(role)
	} else {
		specs = a.tools.List()
	}

	tw := newTable("Name", "Category", "Roles", "Description")
	for _, s := range specs {
		roles := "all"
		if len(s.Roles) > 0 {
			names := make([]string, len(s.Roles))
			for i, r := range s.Roles {
				names[i] = string(r)
			}
			roles = strings.Join(names, ",")
		}
		tw.AppendRow(table.Row{s.Name, s.Category, roles, s.Description})
	}
	tw.Render()
	return nil
}
