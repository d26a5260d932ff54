package runner

import "strings"

// maxColumnWidth clamps rendered cell width so wide values stay readable.
const maxColumnWidth = 40

// renderTable renders query results as a padded ASCII table.
func renderTable(columns []string, rows [][]string) string {
	if len(rows) == 0 {
		return "(no rows)"
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := len(clampCell(cell)); w > widths[i] {
				widths[i] = w
			}
		}
	}

	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", w-len(s))
	}

	var b strings.Builder
	for i, col := range columns {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(pad(col, widths[i]))
	}
	b.WriteByte('\n')
	for i := range columns {
		if i > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", widths[i]))
	}
	for _, row := range rows {
		b.WriteByte('\n')
		for i, cell := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(pad(clampCell(cell), widths[i]))
		}
	}
	return b.String()
}

func clampCell(s string) string {
	if len(s) <= maxColumnWidth {
		return s
	}
	return s[:maxColumnWidth-1] + "…"
}
