package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/docparse"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/glossary"
	"github.com/papertrans/papertrans/internal/provider"
)

// Terminology actions.
const (
	ActionExtract = "extract"
	ActionQuery   = "query"
	ActionUpdate  = "update"
	ActionMerge   = "merge"
)

// How much document text feeds terminology extraction.
const terminologySampleChars = 3000

// TerminologyRequest selects and parameterizes one glossary operation.
type TerminologyRequest struct {
	Action     string
	Domain     string
	Text       string           // extract
	Query      string           // query
	Entry      *glossary.Entry  // update
	Candidates []glossary.Entry // merge
}

// TerminologyResult carries the outcome of a glossary operation. Glossary
// and Conflicts are set by extract and merge; Entries by every action that
// reads the store.
type TerminologyResult struct {
	Glossary  map[string]string
	Entries   []glossary.Entry
	Conflicts []glossary.Conflict
}

// termItem is the wire shape the extraction prompt asks the LLM for.
type termItem struct {
	English     string `json:"english"`
	Chinese     string `json:"chinese"`
	KeepEnglish bool   `json:"keep_english"`
}

// TerminologyAgent extracts domain terminology from document text and
// manages the glossary store. As a workflow phase it runs extract against a
// sample of the document; the query/update/merge actions serve the API and
// CLI surfaces.
type TerminologyAgent struct {
	agent.BaseAgent
	llm     provider.TranslationService
	store   *glossary.Store
	prompts *Prompts
	log     *logger.Logger
}

var _ agent.Agent = (*TerminologyAgent)(nil)

// NewTerminologyAgent wires the agent. llm may be nil for store-only use
// (query/update/merge); extract then returns an empty result.
func NewTerminologyAgent(llm provider.TranslationService, store *glossary.Store, prompts *Prompts, log *logger.Logger) *TerminologyAgent {
	if log == nil {
		log = logger.Default()
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &TerminologyAgent{
		BaseAgent: agent.NewBaseAgent(events.AgentTerminology, "extracts domain terminology and manages the glossary"),
		llm:       llm,
		store:     store,
		prompts:   prompts,
		log:       log.WithFields(zap.String("agent", events.AgentTerminology)),
	}
}

// Run extracts terminology from a sample of the task's document and folds
// the merged glossary into the shared context.
func (a *TerminologyAgent) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}
	actx.Publish(ctx, a.Name(), events.StageStarted, 2, nil)

	domain := glossary.DefaultDomain
	if actx.Profile != nil && actx.Profile.Domain != "" {
		domain = actx.Profile.Domain
	}

	result, err := a.Execute(ctx, &TerminologyRequest{
		Action: ActionExtract,
		Domain: domain,
		Text:   a.sampleText(ctx, actx),
	})
	if err != nil {
		return actx, err
	}

	actx.MergeGlossary(result.Glossary)
	actx.Publish(ctx, a.Name(), events.StageCompleted, 15, map[string]any{
		"terms":     len(result.Glossary),
		"conflicts": len(result.Conflicts),
	})
	return actx, nil
}

// Execute dispatches one terminology action.
func (a *TerminologyAgent) Execute(ctx context.Context, req *TerminologyRequest) (*TerminologyResult, error) {
	if req == nil {
		return nil, fmt.Errorf("terminology request is nil")
	}
	switch req.Action {
	case ActionExtract:
		return a.extract(ctx, req.Domain, req.Text)
	case ActionQuery:
		entries, err := a.store.Search(req.Query, req.Domain)
		if err != nil {
			return nil, err
		}
		return &TerminologyResult{Entries: entries, Glossary: glossary.ToMap(entries)}, nil
	case ActionUpdate:
		if req.Entry == nil {
			return nil, fmt.Errorf("update action requires an entry")
		}
		if err := a.store.Upsert(req.Domain, *req.Entry); err != nil {
			return nil, err
		}
		entries, err := a.store.Load(req.Domain)
		if err != nil {
			return nil, err
		}
		return &TerminologyResult{Entries: entries, Glossary: glossary.ToMap(entries)}, nil
	case ActionMerge:
		entries, conflicts, err := a.store.Merge(req.Domain, req.Candidates)
		if err != nil {
			return nil, err
		}
		return &TerminologyResult{Entries: entries, Glossary: glossary.ToMap(entries), Conflicts: conflicts}, nil
	default:
		return nil, fmt.Errorf("unknown terminology action %q", req.Action)
	}
}

// extract prompts the LLM for term pairs and merges them into the domain
// glossary. An unparseable response degrades to an empty extraction.
func (a *TerminologyAgent) extract(ctx context.Context, domain, text string) (*TerminologyResult, error) {
	domain = glossary.NormalizeDomain(domain)
	empty := &TerminologyResult{Glossary: map[string]string{}, Entries: []glossary.Entry{}}

	if strings.TrimSpace(text) == "" || a.llm == nil {
		return empty, nil
	}

	user := Interpolate(a.prompts.TerminologyUser, map[string]string{
		"domain": domain,
		"text":   text,
	})
	raw, err := a.llm.Complete(ctx, a.prompts.TerminologySystem, user)
	if err != nil {
		return nil, fmt.Errorf("terminology extraction: %w", err)
	}

	var items []termItem
	if err := provider.DecodeArray(raw, &items); err != nil {
		a.log.Warn("terminology response is not a term list, skipping",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return empty, nil
	}

	candidates := make([]glossary.Entry, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, glossary.Entry{
			English:     item.English,
			Chinese:     item.Chinese,
			KeepEnglish: item.KeepEnglish,
			Source:      glossary.SourceLLMExtract,
		})
	}

	entries, conflicts, err := a.store.Merge(domain, candidates)
	if err != nil {
		return nil, err
	}
	return &TerminologyResult{
		Glossary:  glossary.ToMap(entries),
		Entries:   entries,
		Conflicts: conflicts,
	}, nil
}

// sampleText returns up to terminologySampleChars of document text, best
// effort: OCR output when present, otherwise a native parse of the upload.
func (a *TerminologyAgent) sampleText(ctx context.Context, actx *agent.AgentContext) string {
	if actx.OCRMarkdown != "" {
		runes := []rune(actx.OCRMarkdown)
		if len(runes) > terminologySampleChars {
			return string(runes[:terminologySampleChars])
		}
		return actx.OCRMarkdown
	}

	doc := actx.ParsedPDF
	if doc == nil {
		parsed, err := docparse.NewPDFParser().Parse(ctx, actx.Filename, actx.FileContent)
		if err != nil {
			a.log.Warn("terminology sampling could not parse document", zap.Error(err))
			return ""
		}
		doc = parsed
	}
	return doc.ExtractText(terminologySampleChars)
}
