package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/paper"
	"github.com/papertrans/papertrans/internal/provider"
)

const (
	// How much of the translation feeds metadata extraction.
	indexSampleChars = 8000

	// Rule-based fallback abstract length.
	fallbackAbstractChars = 500

	// Keyword enrichment stops at this many entries.
	maxKeywords = 10
)

var markdownPunctRe = regexp.MustCompile("[#*`>|!\\[\\]()$_~-]")

// indexResponse is the wire shape the metadata prompt asks the LLM for.
type indexResponse struct {
	Title           string   `json:"title"`
	TitleZH         string   `json:"title_zh"`
	Authors         []string `json:"authors"`
	Abstract        string   `json:"abstract"`
	Domain          string   `json:"domain"`
	ResearchProblem string   `json:"research_problem"`
	Methodology     string   `json:"methodology"`
	Contributions   []string `json:"contributions"`
	Keywords        []string `json:"keywords"`
	Tags            []string `json:"tags"`
	BaseModels      []string `json:"base_models"`
	Year            *int     `json:"year"`
	Venue           string   `json:"venue"`
}

// IndexAgent extracts paper metadata from the finished translation and
// persists it to the paper repository for later search.
type IndexAgent struct {
	agent.BaseAgent
	llm     provider.TranslationService
	embed   provider.EmbeddingService // nil disables embeddings
	repo    paper.Repository
	prompts *Prompts
	log     *logger.Logger
}

var _ agent.Agent = (*IndexAgent)(nil)

// NewIndexAgent wires the agent. A nil llm skips straight to rule-based
// extraction; a nil embed leaves papers without embeddings.
func NewIndexAgent(llm provider.TranslationService, embed provider.EmbeddingService, repo paper.Repository, prompts *Prompts, log *logger.Logger) *IndexAgent {
	if log == nil {
		log = logger.Default()
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &IndexAgent{
		BaseAgent: agent.NewBaseAgent(events.AgentIndex, "extracts paper metadata and indexes it for search"),
		llm:       llm,
		embed:     embed,
		repo:      repo,
		prompts:   prompts,
		log:       log.WithFields(zap.String("agent", events.AgentIndex)),
	}
}

// Run indexes the translated paper under the task id. Tasks that produced no
// translation are skipped with an event rather than an error.
func (a *IndexAgent) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}
	if strings.TrimSpace(actx.TranslatedMD) == "" {
		actx.Publish(ctx, a.Name(), events.StageSkipped, actx.LastProgress(), map[string]any{
			"reason": "no translated document",
		})
		return actx, nil
	}

	actx.Publish(ctx, a.Name(), events.StageStarted, 92, nil)

	meta, err := a.extractMetadata(ctx, actx)
	if err != nil {
		return actx, err
	}

	meta.Keywords = enrichKeywords(meta.Keywords, actx.Glossary)
	meta.ID = actx.TaskID
	meta.Filename = actx.Filename
	meta.CreatedAt = time.Now().UTC()
	if actx.QualityReport != nil {
		meta.QualityScore = actx.QualityReport.Score
	}

	if a.embed != nil {
		if err := actx.CheckCancelled(); err != nil {
			return actx, err
		}
		vec, err := a.embed.Embed(ctx, embeddingText(meta))
		switch {
		case agent.IsCancellation(err):
			return actx, err
		case err != nil:
			a.log.Warn("embedding failed, indexing without vector",
				zap.String("task_id", actx.TaskID),
				zap.Error(err),
			)
		default:
			meta.Embedding = vec
		}
	}

	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}
	if a.repo != nil {
		if err := a.repo.Upsert(ctx, meta); err != nil {
			return actx, fmt.Errorf("index paper: %w", err)
		}
	}

	actx.PaperMetadata = metadataMap(meta)
	actx.Publish(ctx, a.Name(), events.StageCompleted, 96, map[string]any{
		"title":    meta.Title,
		"domain":   meta.Domain,
		"keywords": len(meta.Keywords),
	})
	return actx, nil
}

// extractMetadata prompts the LLM with the opening of the translation; any
// failure other than cancellation degrades to the rule-based fallback.
func (a *IndexAgent) extractMetadata(ctx context.Context, actx *agent.AgentContext) (*paper.Metadata, error) {
	if a.llm != nil {
		excerpt := truncateRunes(actx.TranslatedMD, indexSampleChars)
		user := Interpolate(a.prompts.IndexUser, map[string]string{"text": excerpt})
		raw, err := a.llm.Complete(ctx, a.prompts.IndexSystem, user)
		switch {
		case agent.IsCancellation(err):
			return nil, err
		case err != nil:
			a.log.Warn("metadata extraction failed, falling back to rules",
				zap.String("task_id", actx.TaskID),
				zap.Error(err),
			)
		default:
			var parsed indexResponse
			if derr := provider.DecodeObject(raw, &parsed); derr != nil {
				a.log.Warn("metadata response is not an object, falling back to rules",
					zap.String("task_id", actx.TaskID),
					zap.Error(derr),
				)
			} else {
				return &paper.Metadata{
					Title:           parsed.Title,
					TitleZH:         parsed.TitleZH,
					Authors:         parsed.Authors,
					Abstract:        parsed.Abstract,
					Domain:          parsed.Domain,
					ResearchProblem: parsed.ResearchProblem,
					Methodology:     parsed.Methodology,
					Contributions:   parsed.Contributions,
					Keywords:        parsed.Keywords,
					Tags:            parsed.Tags,
					BaseModels:      parsed.BaseModels,
					Year:            parsed.Year,
					Venue:           parsed.Venue,
				}, nil
			}
		}
	}
	return fallbackMetadata(actx), nil
}

// fallbackMetadata derives metadata without a model: the first heading as
// title, the profile's domain, glossary keys as keywords and a cleaned
// opening excerpt as abstract.
func fallbackMetadata(actx *agent.AgentContext) *paper.Metadata {
	meta := &paper.Metadata{Domain: "general"}
	if actx.Profile != nil && actx.Profile.Domain != "" {
		meta.Domain = actx.Profile.Domain
	}

	for _, line := range strings.Split(actx.TranslatedMD, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			meta.Title = title
			if containsCJK(title) {
				meta.TitleZH = title
			}
			break
		}
	}

	keys := make([]string, 0, len(actx.Glossary))
	for en := range actx.Glossary {
		keys = append(keys, en)
	}
	sort.Strings(keys)
	if len(keys) > maxKeywords {
		keys = keys[:maxKeywords]
	}
	meta.Keywords = keys

	abstract := truncateRunes(actx.TranslatedMD, fallbackAbstractChars)
	abstract = markdownPunctRe.ReplaceAllString(abstract, " ")
	meta.Abstract = strings.Join(strings.Fields(abstract), " ")
	return meta
}

// enrichKeywords tops keywords up from the glossary until maxKeywords.
func enrichKeywords(keywords []string, glossary map[string]string) []string {
	present := make(map[string]bool, len(keywords))
	out := make([]string, 0, maxKeywords)
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || present[strings.ToLower(k)] {
			continue
		}
		present[strings.ToLower(k)] = true
		out = append(out, k)
	}

	terms := make([]string, 0, len(glossary))
	for en := range glossary {
		terms = append(terms, en)
	}
	sort.Strings(terms)
	for _, en := range terms {
		if len(out) >= maxKeywords {
			break
		}
		if present[strings.ToLower(en)] {
			continue
		}
		present[strings.ToLower(en)] = true
		out = append(out, en)
	}
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

// embeddingText concatenates the searchable prose of one paper.
func embeddingText(meta *paper.Metadata) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{meta.Title, meta.TitleZH, meta.Abstract, meta.ResearchProblem} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// metadataMap converts metadata to the generic mapping stored on the
// context and returned by the workflow entry.
func metadataMap(meta *paper.Metadata) map[string]any {
	data, err := json.Marshal(meta)
	if err != nil {
		return map[string]any{"id": meta.ID, "title": meta.Title}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"id": meta.ID, "title": meta.Title}
	}
	return m
}

// truncateRunes returns up to maxChars runes of s.
func truncateRunes(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
