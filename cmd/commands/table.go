package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// newTable returns a borderless table writer that renders to stdout.
func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.Style().Options = table.OptionsNoBordersAndSeparators
	if len(header) > 0 {
		tw.AppendHeader(table.Row(header))
	}
	return tw
}
