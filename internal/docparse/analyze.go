package docparse

import (
	"strings"
	"unicode"
)

// Analysis summarizes a document's extracted text for pipeline selection.
type Analysis struct {
	// TextLength is the rune count of extractable text.
	TextLength int

	// FormulaDensity is the ratio of LaTeX delimiter characters to total
	// characters.
	FormulaDensity float64

	// TableCount counts pipe-delimited tables (header row followed by a
	// separator row).
	TableCount int

	// Languages holds the rough character-class distribution over the keys
	// "en", "zh" and "other".
	Languages map[string]float64
}

// Analyze computes pipeline-selection signals from extracted text.
func Analyze(text string) *Analysis {
	a := &Analysis{
		Languages: map[string]float64{"en": 0, "zh": 0, "other": 0},
	}

	runes := []rune(text)
	a.TextLength = len(runes)
	if a.TextLength == 0 {
		return a
	}

	delims := 0
	var en, zh, other float64
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '$':
			delims++
		case r == '\\' && i+1 < len(runes) && (runes[i+1] == '(' || runes[i+1] == '['):
			delims++
		}

		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			en++
		case unicode.Is(unicode.Han, r):
			zh++
		case unicode.IsSpace(r):
		default:
			other++
		}
	}
	a.FormulaDensity = float64(delims) / float64(a.TextLength)

	if total := en + zh + other; total > 0 {
		a.Languages["en"] = en / total
		a.Languages["zh"] = zh / total
		a.Languages["other"] = other / total
	}

	a.TableCount = countTables(text)
	return a
}

// countTables scans for pipe-delimited rows immediately followed by a
// separator row.
func countTables(text string) int {
	lines := strings.Split(text, "\n")
	count := 0
	for i := 0; i+1 < len(lines); i++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[i]), "|") {
			continue
		}
		next := splitTableRow(lines[i+1])
		if len(next) > 0 && isSeparatorRow(next) {
			count++
			// Skip past this table's body.
			for i+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i+1]), "|") {
				i++
			}
		}
	}
	return count
}
