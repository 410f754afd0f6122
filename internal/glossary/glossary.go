// Package glossary persists per-domain English to Chinese terminology as
// JSON files with timestamped backups before every mutation.
package glossary

import (
	"regexp"
	"strings"
)

// Entry sources.
const (
	SourceLLMExtract = "llm_extract"
	SourceManual     = "manual"
)

// DefaultDomain is used when no domain label is available.
const DefaultDomain = "general"

// Entry is one terminology mapping.
type Entry struct {
	English     string `json:"english"`
	Chinese     string `json:"chinese"`
	KeepEnglish bool   `json:"keep_english"`
	Domain      string `json:"domain"`
	Source      string `json:"source"`
	UpdatedAt   string `json:"updated_at"`
}

// Conflict reports a merge candidate that would have changed an existing
// translation. The stored entry stays verbatim.
type Conflict struct {
	English  string `json:"english"`
	Existing string `json:"existing"`
	Incoming string `json:"incoming"`
}

// domainFile is the on-disk shape of one domain glossary.
type domainFile struct {
	Domain    string  `json:"domain"`
	Entries   []Entry `json:"entries"`
	UpdatedAt string  `json:"updated_at"`
}

// ToMap flattens entries into the english→chinese mapping the agents carry.
// Keep-English entries with no Chinese side map to themselves.
func ToMap(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		zh := e.Chinese
		if zh == "" && e.KeepEnglish {
			zh = e.English
		}
		if e.English == "" || zh == "" {
			continue
		}
		m[e.English] = zh
	}
	return m
}

var domainCharRe = regexp.MustCompile(`[^a-z0-9_.-]+`)

// NormalizeDomain maps a free-form domain label to a safe file stem:
// lowercased, spaces to underscores, anything outside [a-z0-9_.-] dropped.
// Labels that normalize to nothing fall back to DefaultDomain.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.ReplaceAll(d, " ", "_")
	d = domainCharRe.ReplaceAllString(d, "")
	d = strings.Trim(d, "._-")
	if d == "" {
		return DefaultDomain
	}
	return d
}
