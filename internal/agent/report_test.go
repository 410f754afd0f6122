package agent

import (
	"reflect"
	"testing"
	"time"
)

func TestQualityReport_RoundTrip(t *testing.T) {
	report := NewQualityReport(85)
	report.TermIssues = []TermIssue{{
		EnglishTerm:  "transformer",
		Translations: []string{"变换器", "转换器"},
		Locations:    []string{"Line 3", "Line 17"},
		Suggested:    "变换器",
	}}
	report.FormatIssues = []FormatIssue{{
		Kind:        FormatBrokenTable,
		Location:    "Line 41",
		Description: "table has inconsistent column counts",
	}}
	report.UntranslatedParagraphs = []string{"This block was left in English."}
	report.Suggestions = []string{"统一术语翻译"}

	data, err := report.JSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	parsed, err := ParseQualityReport(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(report, parsed) {
		t.Errorf("round-trip mismatch:\nwant %+v\ngot  %+v", report, parsed)
	}
	if parsed.Timestamp != report.Timestamp {
		t.Errorf("timestamp changed across round-trip: %s vs %s", report.Timestamp, parsed.Timestamp)
	}
}

func TestNewQualityReport_Timestamp(t *testing.T) {
	report := NewQualityReport(100)

	ts, err := time.Parse(time.RFC3339, report.Timestamp)
	if err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("timestamp not current: %s", report.Timestamp)
	}
}

func TestQualityReport_Map(t *testing.T) {
	report := NewQualityReport(70)
	report.Suggestions = []string{"check tables"}

	m, err := report.Map()
	if err != nil {
		t.Fatalf("map conversion failed: %v", err)
	}
	if m["score"] != float64(70) {
		t.Errorf("expected score 70, got %v", m["score"])
	}
	if _, ok := m["timestamp"].(string); !ok {
		t.Errorf("expected string timestamp, got %T", m["timestamp"])
	}
}

func TestPromptProfile_MergeTerminology(t *testing.T) {
	profile := &PromptProfile{
		Domain:      "nlp",
		Terminology: map[string]string{"attention": "注意力机制"},
	}

	profile.MergeTerminology(map[string]string{
		"attention": "注意力", // profile entry wins
		"embedding": "嵌入",
	})

	if profile.Terminology["attention"] != "注意力机制" {
		t.Errorf("profile entry was overwritten: %s", profile.Terminology["attention"])
	}
	if profile.Terminology["embedding"] != "嵌入" {
		t.Errorf("glossary entry missing: %s", profile.Terminology["embedding"])
	}
}
