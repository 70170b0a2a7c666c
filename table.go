package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/sinkpool/internal/device"
)

// maxCellWidth keeps long device ids from pushing the table off screen.
const maxCellWidth = 32

var titleCase = cases.Title(language.English)

// column is one table column. Style, when set, is applied after padding so
// escape sequences do not count towards the width.
type column struct {
	Header string
	Style  func(row int, s string) string
}

// writeTable prints rows aligned under cols.
func writeTable(w io.Writer, cols []column, rows [][]string) error {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = runewidth.StringWidth(c.Header)
	}

	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(cols))
		for i := range cols {
			var s string
			if i < len(row) {
				s = truncate.StringWithTail(row[i], maxCellWidth, "…")
			}
			cells[r][i] = s
			widths[i] = max(widths[i], runewidth.StringWidth(s))
		}
	}

	var b strings.Builder
	for i, c := range cols {
		b.WriteString(faint(runewidth.FillRight(strings.ToUpper(c.Header), widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")

	for r, row := range cells {
		for i, s := range row {
			s = runewidth.FillRight(s, widths[i])
			if cols[i].Style != nil {
				s = cols[i].Style(r, s)
			}
			b.WriteString(s)
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}

	_, err := fmt.Fprint(w, b.String())
	return err //nolint:wrapcheck
}

// statusLabel renders a status for people, e.g. "Not Found".
func statusLabel(s device.Status) string {
	return titleCase.String(strings.ReplaceAll(s.String(), "-", " "))
}
