package agent

import (
	"encoding/json"
	"time"
)

// Format issue kinds reported by the review agent.
const (
	FormatBrokenTable    = "broken_table"
	FormatMissingFormula = "missing_formula"
	FormatBrokenHeading  = "broken_heading"
	FormatMissingImage   = "missing_image"
)

// TermIssue flags a glossary term rendered inconsistently in the
// translation.
type TermIssue struct {
	EnglishTerm  string   `json:"english_term"`
	Translations []string `json:"translations"`
	Locations    []string `json:"locations"`
	Suggested    string   `json:"suggested"`
}

// FormatIssue flags a structural defect in the translated Markdown.
type FormatIssue struct {
	Kind        string `json:"type"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// QualityReport is the review agent's verdict on one translation. It is
// persisted as JSON alongside the translated document.
type QualityReport struct {
	Score                  int           `json:"score"`
	TermIssues             []TermIssue   `json:"term_issues"`
	FormatIssues           []FormatIssue `json:"format_issues"`
	UntranslatedParagraphs []string      `json:"untranslated_paragraphs"`
	Suggestions            []string      `json:"suggestions"`
	Timestamp              string        `json:"timestamp"`
}

// NewQualityReport creates a report stamped with the current UTC time.
func NewQualityReport(score int) *QualityReport {
	return &QualityReport{
		Score:                  score,
		TermIssues:             []TermIssue{},
		FormatIssues:           []FormatIssue{},
		UntranslatedParagraphs: []string{},
		Suggestions:            []string{},
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
	}
}

// JSON serializes the report for persistence.
func (r *QualityReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Map converts the report to a generic mapping for API payloads.
func (r *QualityReport) Map() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseQualityReport deserializes a persisted report.
func ParseQualityReport(data []byte) (*QualityReport, error) {
	var r QualityReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
