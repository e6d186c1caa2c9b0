/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reporter

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// renderSummary writes rows as a two-column Markdown table. The same bytes
// go to the terminal and to the GitHub step summary.
func renderSummary(w io.Writer, rows [][]string) error {
	left := tw.CellAlignment{Global: tw.AlignLeft}
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header:   tw.CellConfig{Alignment: left, Formatting: tw.CellFormatting{AutoFormat: tw.Off}},
			Row:      tw.CellConfig{Alignment: left},
			MaxWidth: 100,
			Behavior: tw.Behavior{TrimSpace: tw.Off},
		}),
		tablewriter.WithHeader([]string{"Field", "Value"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Right: tw.On, Top: tw.Off, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
