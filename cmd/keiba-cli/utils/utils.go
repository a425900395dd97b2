package utils

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// NewTable returns a rounded table mirrored to out with the given header.
func NewTable(out io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	if len(header) > 0 {
		t.AppendHeader(table.Row(header))
	}
	return t
}

// Clip wraps the named columns at width.
func Clip(t table.Writer, width int, columns ...string) {
	configs := make([]table.ColumnConfig, len(columns))
	for i, name := range columns {
		configs[i] = table.ColumnConfig{Name: name, WidthMax: width}
	}
	t.SetColumnConfigs(configs)
}
