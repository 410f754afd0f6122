package docparse

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Parser produces a structured document from raw file bytes.
type Parser interface {
	Parse(ctx context.Context, filename string, content []byte) (*Document, error)
}

// PDFParser reads text-native PDFs. Scanned PDFs come back with empty
// pages; the caller decides whether to fall back to OCR.
type PDFParser struct {
	// yTolerance groups glyph runs into one line when their baselines are
	// within this distance.
	yTolerance float64
}

// NewPDFParser creates a parser with default layout tolerances.
func NewPDFParser() *PDFParser {
	return &PDFParser{yTolerance: 2.0}
}

// Parse extracts pages, text blocks and pipe-delimited tables from the PDF.
// The underlying reader panics on some malformed cross-reference tables, so
// the whole pass runs under a recover.
func (p *PDFParser) Parse(ctx context.Context, filename string, content []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	doc = &Document{Filename: filename}
	total := reader.NumPage()
	for pageNum := 1; pageNum <= total; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		lines := p.assembleLines(page.Content().Text)
		parsed := &Page{Number: pageNum}
		parsed.Blocks, parsed.Tables = groupBlocks(lines)
		doc.Pages = append(doc.Pages, parsed)
	}

	return doc, nil
}

// textLine is one baseline of glyph runs, merged left to right.
type textLine struct {
	y        float64
	fontSize float64
	bold     bool
	text     string
}

// assembleLines sorts glyph runs into reading order (top to bottom, left to
// right) and merges runs sharing a baseline.
func (p *PDFParser) assembleLines(texts []pdf.Text) []textLine {
	if len(texts) == 0 {
		return nil
	}

	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if diff := sorted[i].Y - sorted[j].Y; diff > p.yTolerance || diff < -p.yTolerance {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []textLine
	var cur *textLine
	var curEndX float64

	for _, t := range sorted {
		if t.S == "" {
			continue
		}
		if cur == nil || cur.y-t.Y > p.yTolerance || t.Y-cur.y > p.yTolerance {
			lines = appendLine(lines, cur)
			cur = &textLine{
				y:        t.Y,
				fontSize: t.FontSize,
				bold:     isBoldFont(t.Font),
				text:     t.S,
			}
			curEndX = t.X + t.W
			continue
		}
		// Same baseline; keep a space across significant horizontal gaps.
		if t.X-curEndX > 1.5 && !strings.HasSuffix(cur.text, " ") {
			cur.text += " "
		}
		cur.text += t.S
		curEndX = t.X + t.W
	}
	return appendLine(lines, cur)
}

func appendLine(lines []textLine, l *textLine) []textLine {
	if l == nil || strings.TrimSpace(l.text) == "" {
		return lines
	}
	l.text = strings.TrimSpace(l.text)
	return append(lines, *l)
}

func isBoldFont(font string) bool {
	return strings.Contains(strings.ToLower(font), "bold")
}

// groupBlocks folds lines into paragraph blocks and splits off runs of
// pipe-delimited lines as tables. A new block starts on a font size change
// or a vertical gap larger than the running line height.
func groupBlocks(lines []textLine) ([]TextBlock, []*Table) {
	var blocks []TextBlock
	var tables []*Table

	var tableLines []string
	flushTable := func() {
		if len(tableLines) >= 2 {
			if table, ok := parseTableLines(tableLines); ok {
				tables = append(tables, table)
				tableLines = nil
				return
			}
		}
		// Not a real table, keep the lines as text blocks.
		for _, l := range tableLines {
			blocks = append(blocks, TextBlock{Text: l})
		}
		tableLines = nil
	}

	var cur *TextBlock
	var prevLine *textLine
	flushBlock := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			blocks = append(blocks, *cur)
		}
		cur = nil
	}

	for i := range lines {
		line := lines[i]

		if strings.HasPrefix(strings.TrimSpace(line.text), "|") {
			flushBlock()
			prevLine = nil
			tableLines = append(tableLines, line.text)
			continue
		}
		flushTable()

		startNew := cur == nil
		if !startNew && prevLine != nil {
			if sizeDelta(cur.FontSize, line.fontSize) > 0.6 {
				startNew = true
			} else if gap := prevLine.y - line.y; gap > 1.8*max(line.fontSize, 8) {
				startNew = true
			}
		}

		if startNew {
			flushBlock()
			cur = &TextBlock{
				Text:     line.text,
				Y:        line.y,
				FontSize: line.fontSize,
				Bold:     line.bold,
			}
		} else {
			cur.Text += " " + line.text
		}
		prevLine = &lines[i]
	}
	flushTable()
	flushBlock()

	return blocks, tables
}

func sizeDelta(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
