package docparse

import (
	"regexp"
	"strings"
)

var (
	markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s`)
	// `3. Results`, `4) Discussion`, `2.1 Ablation Study`
	numberedHeadingRe = regexp.MustCompile(`^(\d+(\.\d+)+|\d+[.)])\s*\S`)
)

// sentence-terminating punctuation, English and Chinese. Trailing quotes
// and closing brackets are stripped before the check.
const terminalPunct = ".!?。！？…"
const trailingClosers = `"'”’)]）】`

// endsSentence reports whether a block of text ends in sentence-terminating
// punctuation.
func endsSentence(text string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(text), trailingClosers)
	if trimmed == "" {
		return false
	}
	runes := []rune(trimmed)
	return strings.ContainsRune(terminalPunct, runes[len(runes)-1])
}

// isHeadingLine reports whether a line looks like a heading: Markdown `#`,
// an ALL-CAPS line of at least 6 characters, or a numbered heading such as
// `3. Results` or `3) Results`.
func isHeadingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if markdownHeadingRe.MatchString(trimmed) {
		return true
	}
	if numberedHeadingRe.MatchString(trimmed) {
		return true
	}
	return isAllCaps(trimmed)
}

func isAllCaps(s string) bool {
	if len([]rune(s)) < 6 {
		return false
	}
	letters := 0
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			letters++
		}
	}
	return letters > 0
}

// fontSizesCompatible applies the stitching font heuristic: sizes must
// differ by less than a factor of 1.15. Unknown sizes (zero) never veto.
func fontSizesCompatible(a, b float64) bool {
	if a <= 0 || b <= 0 {
		return true
	}
	ratio := a / b
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return ratio < 1.15
}

// StitchPages repairs paragraphs broken across page boundaries. For every
// boundary it folds the first non-empty block of page N+1 into the last
// non-empty block of page N when the tail is mid-sentence, the head is not
// a heading, and the font sizes match. Returns the number of merges
// performed.
//
// Running the pass again on its own output performs no further merges: a
// merged tail ends with the continuation's sentence punctuation.
func StitchPages(doc *Document) int {
	if doc == nil || len(doc.Pages) < 2 {
		return 0
	}

	merges := 0
	for i := 0; i+1 < len(doc.Pages); i++ {
		tail := doc.Pages[i]
		head := doc.Pages[i+1]

		ti := tail.lastNonEmptyBlock()
		hi := head.firstNonEmptyBlock()
		if ti < 0 || hi < 0 {
			continue
		}

		tailBlock := &tail.Blocks[ti]
		headBlock := head.Blocks[hi]

		if endsSentence(tailBlock.Text) {
			continue
		}
		if isHeadingLine(headBlock.Text) {
			continue
		}
		if !fontSizesCompatible(tailBlock.FontSize, headBlock.FontSize) {
			continue
		}

		tailBlock.Text = strings.TrimSpace(tailBlock.Text) + " " + strings.TrimSpace(headBlock.Text)
		head.Blocks = append(head.Blocks[:hi], head.Blocks[hi+1:]...)
		merges++
	}
	return merges
}

// MergeTables repairs tables broken across page boundaries: when page N's
// last table and page N+1's first table have the same column count and the
// continuation has no header of its own, the continuation rows move to
// page N. Returns the number of merges performed.
func MergeTables(doc *Document) int {
	if doc == nil || len(doc.Pages) < 2 {
		return 0
	}

	merges := 0
	for i := 0; i+1 < len(doc.Pages); i++ {
		tail := doc.Pages[i]
		head := doc.Pages[i+1]
		if len(tail.Tables) == 0 || len(head.Tables) == 0 {
			continue
		}

		last := tail.Tables[len(tail.Tables)-1]
		first := head.Tables[0]

		if first.HasHeader() {
			continue
		}
		if last.Columns() == 0 || last.Columns() != first.Columns() {
			continue
		}

		last.Rows = append(last.Rows, first.Rows...)
		head.Tables = head.Tables[1:]
		merges++
	}
	return merges
}
