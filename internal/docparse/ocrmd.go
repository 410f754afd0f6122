package docparse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTableRe  = regexp.MustCompile(`(?is)<table\b[^>]*>.*?</table>`)
	htmlImageRe  = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	imgSrcRe     = regexp.MustCompile(`(?is)src\s*=\s*["']([^"']*)["']`)
	imgAltRe     = regexp.MustCompile(`(?is)alt\s*=\s*["']([^"']*)["']`)
	captionDivRe = regexp.MustCompile(`(?is)<div\b[^>]*(?:text-align\s*:\s*center|align\s*=\s*["']?center)[^>]*>(.*?)</div>`)
	pageMarkerRe = regexp.MustCompile(`^<!--\s*[Pp]age\s+\d+\s*-->$`)
	htmlTagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
)

// PrepareOCRMarkdown runs the full OCR output cleanup: HTML tables become
// Markdown, images and captions are normalized, page-break paragraphs are
// stitched, and tables are repaired.
func PrepareOCRMarkdown(md string) string {
	md = ConvertHTMLTables(md)
	md = NormalizeImages(md)
	md = StitchOCRMarkdown(md)
	md = RepairMarkdownTables(md)
	return md
}

// ConvertHTMLTables rewrites every HTML <table> block as a Markdown pipe
// table, preserving the column count and escaping pipes inside cells.
// Tables that fail to parse are left untouched.
func ConvertHTMLTables(md string) string {
	return htmlTableRe.ReplaceAllStringFunc(md, func(html string) string {
		table, err := htmlTableToMarkdown(html)
		if err != nil || table == "" {
			return html
		}
		return table
	})
}

func htmlTableToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	var rows [][]string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return "", nil
	}

	// Markdown tables need a header row; the first row serves whether the
	// source used <th> or not.
	table := &Table{Header: rows[0], Rows: rows[1:]}
	return table.Markdown(), nil
}

// NormalizeImages rewrites <img> tags as Markdown image references and
// turns centered caption <div>s into block-quoted figcaptions.
func NormalizeImages(md string) string {
	md = htmlImageRe.ReplaceAllStringFunc(md, func(tag string) string {
		src := ""
		if m := imgSrcRe.FindStringSubmatch(tag); m != nil {
			src = strings.TrimSpace(m[1])
		}
		if src == "" {
			return ""
		}
		alt := ""
		if m := imgAltRe.FindStringSubmatch(tag); m != nil {
			alt = strings.TrimSpace(m[1])
		}
		return fmt.Sprintf("![%s](%s)", alt, src)
	})

	md = captionDivRe.ReplaceAllStringFunc(md, func(div string) string {
		m := captionDivRe.FindStringSubmatch(div)
		if m == nil {
			return div
		}
		caption := strings.TrimSpace(htmlTagRe.ReplaceAllString(m[1], ""))
		if caption == "" {
			return ""
		}
		return "> " + caption
	})

	return md
}

// StitchOCRMarkdown repairs paragraphs broken at `<!-- Page N -->` markers.
// When the line before a marker is mid-sentence and the line after is not a
// heading, the two lines merge and the marker plus intervening blanks are
// dropped. Markers are removed either way.
func StitchOCRMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	var out []string

	i := 0
	for i < len(lines) {
		line := lines[i]
		if !pageMarkerRe.MatchString(strings.TrimSpace(line)) {
			out = append(out, line)
			i++
			continue
		}

		// Locate the previous non-empty output line and the next non-empty
		// input line.
		prev := len(out) - 1
		for prev >= 0 && strings.TrimSpace(out[prev]) == "" {
			prev--
		}
		next := i + 1
		for next < len(lines) && strings.TrimSpace(lines[next]) == "" {
			next++
		}

		if prev >= 0 && next < len(lines) &&
			!endsSentence(out[prev]) && !isHeadingLine(lines[next]) &&
			!strings.HasPrefix(strings.TrimSpace(out[prev]), "|") {
			// Merge across the page break, dropping blanks on both sides.
			out = out[:prev+1]
			out[prev] = strings.TrimSpace(out[prev]) + " " + strings.TrimSpace(lines[next])
			i = next + 1
			continue
		}

		// Condition not met: drop the marker but keep the paragraph break.
		if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
		i++
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
	}

	return strings.Join(out, "\n")
}
