package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

// NewReportCommand returns the report subcommand.
func NewReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render the execution report of a task",
		ArgsUsage: "<task_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print the markdown source instead of rendering it",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Word wrap width",
				Value: 100,
			},
		},
		Action: runReport,
	}
}

func runReport(ctx context.Context, cmd *cli.Command) error {
	taskID, err := requireArg(cmd, "<task_id>", "report")
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	md, err := a.orch.ExportExecutionReport(taskID)
	if err != nil {
		return err
	}
	if cmd.Bool("raw") {
		fmt.Print(md)
		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(cmd.Int("width")),
	)
	if err != nil {
		return fmt.Errorf("init markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	fmt.Print(out)
	return nil
}

// NewStatsCommand returns the statistics subcommand.
func NewStatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate task and agent statistics",
		Action: runStats,
	}
}

func runStats(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	st := a.orch.GetStatistics()
	tw := newTable()
	tw.AppendRow(table.Row{"Tasks", st.Tasks})
	for _, k := range sortedKeys(st.TasksByStatus) {
		tw.AppendRow(table.Row{"  " + string(k), st.TasksByStatus[k]})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Agents", st.Agents})
	for _, k := range sortedKeys(st.AgentsByStatus) {
		tw.AppendRow(table.Row{"  " + string(k), st.AgentsByStatus[k]})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Agent time", fmt.Sprintf("%s total, %s mean", st.TotalDuration, st.MeanDuration)})
	tw.Render()
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
