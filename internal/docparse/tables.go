package docparse

import (
	"regexp"
	"strings"
)

// separatorCellRe matches one alignment cell of a Markdown table separator
// row. A malformed separator (e.g. `-x-`) makes the whole row a content
// row.
var separatorCellRe = regexp.MustCompile(`^:?-+:?$`)

// splitTableRow splits a pipe-delimited row into trimmed cells, honoring
// escaped pipes. Returns nil when the line is not a table row.
func splitTableRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") {
		return nil
	}

	var cells []string
	var cell strings.Builder
	escaped := false
	// Skip the leading pipe.
	for _, r := range trimmed[1:] {
		switch {
		case escaped:
			if r != '|' {
				cell.WriteRune('\\')
			}
			cell.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteRune(r)
		}
	}
	if escaped {
		cell.WriteRune('\\')
	}
	// Text after the final pipe counts as a cell only when non-empty
	// (tables normally close each row with a pipe).
	if rest := strings.TrimSpace(cell.String()); rest != "" {
		cells = append(cells, rest)
	}
	return cells
}

// isSeparatorRow reports whether every cell is a well-formed alignment
// marker.
func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCellRe.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return true
}

// parseTableLines converts a run of pipe-delimited lines into a Table. The
// first row becomes the header only when a separator row follows it.
func parseTableLines(lines []string) (*Table, bool) {
	var rows [][]string
	separatorAfterFirst := false
	for i, line := range lines {
		cells := splitTableRow(line)
		if cells == nil {
			return nil, false
		}
		if isSeparatorRow(cells) {
			if i == 1 {
				separatorAfterFirst = true
			}
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, false
	}

	table := &Table{}
	if separatorAfterFirst {
		table.Header = rows[0]
		table.Rows = rows[1:]
	} else {
		table.Rows = rows
	}
	return table, true
}

// RepairMarkdownTables normalizes every pipe table in a Markdown document:
// the column count is inferred from the first row, a separator row is
// inserted after the header when missing, short rows are padded with empty
// cells and over-long rows are truncated.
func RepairMarkdownTables(md string) string {
	lines := strings.Split(md, "\n")
	var out []string
	var tableLines []string

	flush := func() {
		if len(tableLines) > 0 {
			out = append(out, repairTableBlock(tableLines)...)
			tableLines = nil
		}
	}

	inCodeFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeFence = !inCodeFence
			flush()
			out = append(out, line)
			continue
		}
		if !inCodeFence && strings.HasPrefix(strings.TrimSpace(line), "|") {
			tableLines = append(tableLines, line)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}

// repairTableBlock fixes one contiguous run of table rows.
func repairTableBlock(lines []string) []string {
	if len(lines) < 2 {
		return lines
	}

	type row struct {
		cells     []string
		separator bool
	}
	var rows []row
	for _, line := range lines {
		cells := splitTableRow(line)
		if cells == nil {
			return lines
		}
		rows = append(rows, row{cells: cells, separator: isSeparatorRow(cells)})
	}

	cols := len(rows[0].cells)
	if cols == 0 {
		return lines
	}

	var out []string
	renderRow := func(cells []string) string {
		fixed := make([]string, cols)
		for i := 0; i < cols; i++ {
			if i < len(cells) {
				fixed[i] = escapePipes(cells[i])
			}
		}
		return "| " + strings.Join(fixed, " | ") + " |"
	}

	out = append(out, renderRow(rows[0].cells))

	separator := "|" + strings.Repeat("---|", cols)
	if len(rows) > 1 && rows[1].separator {
		out = append(out, separator)
		rows = rows[2:]
	} else {
		out = append(out, separator)
		rows = rows[1:]
	}

	for _, r := range rows {
		if r.separator {
			// Stray separators mid-table are dropped.
			continue
		}
		out = append(out, renderRow(r.cells))
	}
	return out
}
