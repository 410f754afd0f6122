// Package docparse holds the structured document model produced from PDFs,
// the native parser that fills it, and the cross-page repair passes
// (paragraph stitching, table merging) applied before translation.
package docparse

import (
	"strings"
)

// TextBlock is one paragraph-level run of text on a page, carrying the
// layout hints the stitching heuristics need.
type TextBlock struct {
	Text     string
	Y        float64
	FontSize float64
	Bold     bool
}

// Table is a parsed table. Header is nil when the table carries no header
// row of its own (typically a continuation fragment from a page break).
type Table struct {
	Header []string
	Rows   [][]string
}

// Columns returns the table's column count, inferred from the header or the
// first row.
func (t *Table) Columns() int {
	if len(t.Header) > 0 {
		return len(t.Header)
	}
	if len(t.Rows) > 0 {
		return len(t.Rows[0])
	}
	return 0
}

// HasHeader reports whether the table carries its own header row.
func (t *Table) HasHeader() bool {
	return len(t.Header) > 0
}

// Markdown renders the table as a pipe table. Tables without headers get an
// empty header so the output stays valid Markdown.
func (t *Table) Markdown() string {
	cols := t.Columns()
	if cols == 0 {
		return ""
	}

	var b strings.Builder
	header := t.Header
	if len(header) == 0 {
		header = make([]string, cols)
	}
	writeRow(&b, header, cols)

	b.WriteString("|")
	for i := 0; i < cols; i++ {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	for _, row := range t.Rows {
		writeRow(&b, row, cols)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string, cols int) {
	b.WriteString("|")
	for i := 0; i < cols; i++ {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteString(" " + escapePipes(cell) + " |")
	}
	b.WriteString("\n")
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Page is one page of a parsed document: ordered text blocks plus any
// tables found on the page.
type Page struct {
	Number int
	Blocks []TextBlock
	Tables []*Table
}

// lastNonEmptyBlock returns the index of the page's last block with text,
// or -1.
func (p *Page) lastNonEmptyBlock() int {
	for i := len(p.Blocks) - 1; i >= 0; i-- {
		if strings.TrimSpace(p.Blocks[i].Text) != "" {
			return i
		}
	}
	return -1
}

// firstNonEmptyBlock returns the index of the page's first block with text,
// or -1.
func (p *Page) firstNonEmptyBlock() int {
	for i := range p.Blocks {
		if strings.TrimSpace(p.Blocks[i].Text) != "" {
			return i
		}
	}
	return -1
}

// Document is the structured form of a text-native PDF.
type Document struct {
	Filename string
	Pages    []*Page
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// ExtractText concatenates block text across pages up to maxChars runes.
// maxChars <= 0 means no limit.
func (d *Document) ExtractText(maxChars int) string {
	var b strings.Builder
	count := 0
	for _, page := range d.Pages {
		for _, block := range page.Blocks {
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
				count++
			}

			runes := []rune(text)
			if maxChars > 0 && count+len(runes) >= maxChars {
				b.WriteString(string(runes[:maxChars-count]))
				return b.String()
			}
			b.WriteString(text)
			count += len(runes)
		}
	}
	return b.String()
}
