package agents

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/docparse"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/provider"
)

// Rough segment size for the OCR pipeline. Segments break only at blank
// lines outside fenced code, so real sizes vary around this.
const segmentTargetChars = 3000

// Pipeline turns a prepared document into translated Markdown.
type Pipeline interface {
	Execute(ctx context.Context, actx *agent.AgentContext) (*PipelineResult, error)
}

// PipelineResult is what a pipeline hands back to the translation agent.
type PipelineResult struct {
	TranslatedMD string
	Images       map[string][]byte
	OCRMarkdown  string
	OCRImages    map[string][]byte
	Profile      *agent.PromptProfile
}

// llmPipeline translates a natively parsed document page by page.
type llmPipeline struct {
	llm         provider.TranslationService
	prompts     *Prompts
	concurrency int
	log         *logger.Logger
}

var _ Pipeline = (*llmPipeline)(nil)

func (p *llmPipeline) Execute(ctx context.Context, actx *agent.AgentContext) (*PipelineResult, error) {
	doc := actx.ParsedPDF
	if doc == nil || doc.PageCount() == 0 {
		return nil, fmt.Errorf("document has no parsed pages")
	}

	sources := make([]string, 0, doc.PageCount())
	for _, page := range doc.Pages {
		sources = append(sources, pageSource(page))
	}

	translated, err := translateChunks(ctx, actx, p.llm, p.prompts, p.concurrency, sources)
	if err != nil {
		return nil, err
	}

	md := joinSegments(translated)
	if md == "" {
		return nil, fmt.Errorf("document has no translatable text")
	}
	return &PipelineResult{
		TranslatedMD: md,
		Profile:      actx.Profile,
	}, nil
}

// ocrPipeline translates OCR Markdown segment by segment.
type ocrPipeline struct {
	llm         provider.TranslationService
	prompts     *Prompts
	concurrency int
	log         *logger.Logger
}

var _ Pipeline = (*ocrPipeline)(nil)

func (p *ocrPipeline) Execute(ctx context.Context, actx *agent.AgentContext) (*PipelineResult, error) {
	if strings.TrimSpace(actx.OCRMarkdown) == "" {
		return nil, fmt.Errorf("document has no ocr markdown")
	}

	segments := splitMarkdown(actx.OCRMarkdown, segmentTargetChars)
	translated, err := translateChunks(ctx, actx, p.llm, p.prompts, p.concurrency, segments)
	if err != nil {
		return nil, err
	}

	images := make(map[string][]byte, len(actx.OCRImages))
	for name, data := range actx.OCRImages {
		images[name] = data
	}

	return &PipelineResult{
		TranslatedMD: joinSegments(translated),
		Images:       images,
		OCRMarkdown:  actx.OCRMarkdown,
		OCRImages:    actx.OCRImages,
		Profile:      actx.Profile,
	}, nil
}

// translateChunks translates chunks concurrently with a worker cap,
// preserving input order in the output. Empty chunks stay empty. Progress
// events carry the completed count, not the chunk index, so they increase.
func translateChunks(ctx context.Context, actx *agent.AgentContext, llm provider.TranslationService, prompts *Prompts, concurrency int, chunks []string) ([]string, error) {
	total := 0
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			total++
		}
	}
	if total == 0 {
		return make([]string, len(chunks)), nil
	}

	system := ""
	if actx.Profile != nil {
		system = actx.Profile.GeneratedPrompt
	}

	results := make([]string, len(chunks))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		i, chunk := i, chunk
		g.Go(func() error {
			if err := actx.CheckCancelled(); err != nil {
				return err
			}
			user := Interpolate(prompts.TranslateUser, map[string]string{"text": chunk})
			out, err := llm.Complete(gctx, system, user)
			if err != nil {
				return fmt.Errorf("translate segment %d: %w", i+1, err)
			}
			results[i] = out

			n := done.Add(1)
			progress := 26 + int(float64(n)/float64(total)*42)
			actx.Publish(gctx, events.AgentTranslation, events.StageTranslating, progress, map[string]any{
				"segment": int(n),
				"total":   total,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// pageSource renders one parsed page as translation input: text blocks
// separated by blank lines, tables as Markdown.
func pageSource(page *docparse.Page) string {
	var b strings.Builder
	for _, block := range page.Blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	for _, table := range page.Tables {
		md := strings.TrimSpace(table.Markdown())
		if md == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(md)
	}
	return b.String()
}

// splitMarkdown cuts Markdown into segments of roughly target runes,
// breaking only at blank lines outside fenced code blocks so tables,
// fences and paragraphs stay intact.
func splitMarkdown(md string, target int) []string {
	lines := strings.Split(md, "\n")

	var segments []string
	var current []string
	currentLen := 0
	inFence := false

	flush := func() {
		seg := strings.TrimSpace(strings.Join(current, "\n"))
		if seg != "" {
			segments = append(segments, seg)
		}
		current = nil
		currentLen = 0
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if trimmed == "" && !inFence && currentLen >= target {
			flush()
			continue
		}
		current = append(current, line)
		currentLen += len([]rune(line)) + 1
	}
	flush()
	return segments
}

// joinSegments drops empty segments and joins the rest as paragraphs.
func joinSegments(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
