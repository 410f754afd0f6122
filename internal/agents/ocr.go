package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/docparse"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/provider"
)

// A document with at least this much extractable text is translated from
// the native parse; anything below goes through OCR when available.
const minNativeTextChars = 200

// OCRAgent decides between the native (llm) and OCR pipelines, executes the
// chosen preparation, and leaves clean stitched intermediate output on the
// context.
type OCRAgent struct {
	agent.BaseAgent
	ocr provider.OCRService // nil when no provider is configured
	log *logger.Logger
}

var _ agent.Agent = (*OCRAgent)(nil)

// NewOCRAgent wires the agent. A nil OCR service disables the OCR path.
func NewOCRAgent(ocr provider.OCRService, log *logger.Logger) *OCRAgent {
	if log == nil {
		log = logger.Default()
	}
	return &OCRAgent{
		BaseAgent: agent.NewBaseAgent(events.AgentOCR, "prepares the document for translation via native parsing or OCR"),
		ocr:       ocr,
		log:       log.WithFields(zap.String("agent", events.AgentOCR)),
	}
}

// Run analyzes the upload, picks a pipeline and prepares its input. When the
// pipeline is already prepared (auto-fix rerun) it does nothing.
func (a *OCRAgent) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}
	if actx.PipelineType != "" && (actx.ParsedPDF != nil || actx.OCRMarkdown != "") {
		return actx, nil
	}

	actx.Publish(ctx, a.Name(), events.StageStarted, 16, nil)

	doc, analysis := a.analyze(ctx, actx)
	pipeline := a.selectPipeline(actx, analysis)
	actx.Publish(ctx, a.Name(), events.StageAnalyzing, 18, map[string]any{
		"text_length":     analysis.TextLength,
		"formula_density": analysis.FormulaDensity,
		"table_count":     analysis.TableCount,
		"languages":       analysis.Languages,
		"pipeline":        pipeline,
	})

	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}

	if pipeline == agent.PipelineOCR {
		return a.runOCRPath(ctx, actx)
	}
	return a.runLLMPath(ctx, actx, doc)
}

// analyze parses the upload natively and computes selection signals. A
// failed parse is treated as a scanned document: nil doc, zero text.
func (a *OCRAgent) analyze(ctx context.Context, actx *agent.AgentContext) (*docparse.Document, *docparse.Analysis) {
	doc, err := docparse.NewPDFParser().Parse(ctx, actx.Filename, actx.FileContent)
	if err != nil {
		a.log.Warn("native parse failed, treating document as scanned",
			zap.String("task_id", actx.TaskID),
			zap.Error(err),
		)
		return nil, docparse.Analyze("")
	}
	return doc, docparse.Analyze(doc.ExtractText(0))
}

func (a *OCRAgent) selectPipeline(actx *agent.AgentContext, analysis *docparse.Analysis) string {
	if actx.EnableOCR {
		if a.ocr != nil {
			return agent.PipelineOCR
		}
		a.log.Warn("ocr forced but no provider is configured, falling back to native parsing",
			zap.String("task_id", actx.TaskID),
		)
		return agent.PipelineLLM
	}
	if analysis.TextLength >= minNativeTextChars {
		return agent.PipelineLLM
	}
	if a.ocr != nil {
		return agent.PipelineOCR
	}
	return agent.PipelineLLM
}

// runLLMPath stitches the parsed document across page boundaries and hands
// it to the translation phase.
func (a *OCRAgent) runLLMPath(ctx context.Context, actx *agent.AgentContext, doc *docparse.Document) (*agent.AgentContext, error) {
	if doc == nil {
		doc = &docparse.Document{Filename: actx.Filename}
	}
	actx.Publish(ctx, a.Name(), events.StageParsing, 20, map[string]any{
		"pages": doc.PageCount(),
	})

	mergedBlocks := docparse.StitchPages(doc)
	mergedTables := docparse.MergeTables(doc)
	actx.Publish(ctx, a.Name(), events.StageStitching, 23, map[string]any{
		"merged_blocks": mergedBlocks,
		"merged_tables": mergedTables,
	})

	actx.ParsedPDF = doc
	actx.PipelineType = agent.PipelineLLM
	actx.Publish(ctx, a.Name(), events.StageCompleted, 25, map[string]any{
		"pipeline": agent.PipelineLLM,
	})
	return actx, nil
}

// runOCRPath sends the upload to the OCR provider and cleans its Markdown.
func (a *OCRAgent) runOCRPath(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	actx.Publish(ctx, a.Name(), events.StageOCR, 20, nil)

	result, err := a.ocr.Recognize(ctx, actx.FileContent, actx.Filename)
	if err != nil {
		return actx, fmt.Errorf("ocr recognition: %w", err)
	}
	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}

	actx.Publish(ctx, a.Name(), events.StageStitching, 23, map[string]any{
		"images": len(result.Images),
	})
	actx.OCRMarkdown = docparse.PrepareOCRMarkdown(result.Markdown)
	actx.OCRImages = result.Images
	actx.PipelineType = agent.PipelineOCR

	actx.Publish(ctx, a.Name(), events.StageCompleted, 25, map[string]any{
		"pipeline":     agent.PipelineOCR,
		"markdown_len": len(actx.OCRMarkdown),
	})
	return actx, nil
}
