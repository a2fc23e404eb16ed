package main

import (
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// column describes one triggerctl table column. Numeric columns hold
// confidences, thresholds and counts and are right-aligned under a
// right-aligned header; text columns wrap at maxWidth.
type column struct {
	title    string
	numeric  bool
	maxWidth int
}

func textCol(title string) column { return column{title: title} }

func numCol(title string) column { return column{title: title, numeric: true} }

// wideCol is a text column for free-form reasoning that would otherwise
// stretch the table.
func wideCol(title string) column { return column{title: title, maxWidth: 48} }

// emptyCell stands in for values a row does not have, such as the reason of
// an emitted warning.
const emptyCell = "-"

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c.title
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			cell := emptyCell
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				cell = row[i]
			}
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.numeric {
			cfg.Align = text.AlignRight
			cfg.AlignHeader = text.AlignRight
		}
		if c.maxWidth > 0 {
			cfg.WidthMax = c.maxWidth
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs[i] = cfg
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(s string, c text.Color, enabled bool) string {
	if !enabled {
		return s
	}
	return c.Sprint(s)
}

var titleCaser = cases.Title(language.Und)

// displayCategory turns "swear_words" into "Swear Words".
func displayCategory(c detection.Category) string {
	return titleCaser.String(strings.ReplaceAll(string(c), "_", " "))
}
