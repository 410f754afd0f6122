package agent

// PromptProfile is the translation agent's analysis of a document: the
// research domain, the terminology mapping to enforce, the terms kept in
// English, and the fully rendered translation prompt. An auto-fix rerun
// reuses the profile verbatim instead of re-analyzing.
type PromptProfile struct {
	Domain          string            `json:"domain"`
	Terminology     map[string]string `json:"terminology"`
	KeepEnglish     []string          `json:"keep_english"`
	GeneratedPrompt string            `json:"generated_prompt"`
}

// MergeTerminology folds glossary entries into the profile's terminology
// mapping. Existing profile entries win on conflict.
func (p *PromptProfile) MergeTerminology(glossary map[string]string) {
	if p.Terminology == nil {
		p.Terminology = make(map[string]string, len(glossary))
	}
	for en, zh := range glossary {
		if _, exists := p.Terminology[en]; !exists {
			p.Terminology[en] = zh
		}
	}
}
