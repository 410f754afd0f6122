package agent

import (
	"context"
	"sync"

	"github.com/papertrans/papertrans/internal/docparse"
	"github.com/papertrans/papertrans/internal/events/bus"
)

// Pipeline types set by the OCR agent and read by the translation agent.
const (
	PipelineLLM = "llm"
	PipelineOCR = "ocr"
)

// AgentContext is the sole mutable object shared across agents for one
// translation task. The workflow entry constructs it, agents mutate it in
// strict phase order, and it is discarded after persistence.
//
// The bus reference is used only to publish; the context never owns it.
type AgentContext struct {
	// Immutable after construction.
	TaskID      string
	Filename    string
	FileContent []byte
	Bus         bus.EventBus
	EnableOCR   bool
	Token       *CancellationToken

	// Mutated by agents as the task advances.
	PipelineType  string // "", PipelineLLM or PipelineOCR
	ParsedPDF     *docparse.Document
	OCRMarkdown   string
	OCRImages     map[string][]byte
	Glossary      map[string]string
	Profile       *PromptProfile
	TranslatedMD  string
	Images        map[string][]byte
	QualityReport *QualityReport
	PaperMetadata map[string]any
	TranslationID string

	mu           sync.Mutex
	lastProgress int
}

// NewAgentContext creates the shared context for one task. The bus defaults
// to the process-global one and the token starts uncancelled; both can be
// replaced before the workflow starts.
func NewAgentContext(taskID, filename string, fileContent []byte) *AgentContext {
	return &AgentContext{
		TaskID:      taskID,
		Filename:    filename,
		FileContent: fileContent,
		Bus:         bus.Default(),
		Token:       NewCancellationToken(),
		OCRImages:   make(map[string][]byte),
		Glossary:    make(map[string]string),
		Images:      make(map[string][]byte),
	}
}

// Publish emits a progress event for this task. Progress values are forced
// monotonically non-decreasing within the run; heartbeat values (negative)
// pass through untouched. Delivery failures are ignored, publishing is
// fire-and-forget for agents.
func (c *AgentContext) Publish(ctx context.Context, agentName, stage string, progress int, detail map[string]any) {
	if c.Bus == nil {
		return
	}

	p := progress
	if p >= 0 {
		if p > 100 {
			p = 100
		}
		c.mu.Lock()
		if p < c.lastProgress {
			p = c.lastProgress
		} else {
			c.lastProgress = p
		}
		c.mu.Unlock()
	}

	_ = c.Bus.Publish(ctx, c.TaskID, bus.NewEvent(agentName, stage, p, detail))
}

// LastProgress returns the highest progress value published so far.
func (c *AgentContext) LastProgress() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProgress
}

// CheckCancelled returns ErrCancelled once the task's token has been
// cancelled.
func (c *AgentContext) CheckCancelled() error {
	if c.Token == nil {
		return nil
	}
	return c.Token.Check()
}

// MergeGlossary folds entries into the shared glossary without overwriting
// translations that already exist. The glossary only grows within a run.
func (c *AgentContext) MergeGlossary(entries map[string]string) {
	if c.Glossary == nil {
		c.Glossary = make(map[string]string, len(entries))
	}
	for en, zh := range entries {
		if _, exists := c.Glossary[en]; !exists {
			c.Glossary[en] = zh
		}
	}
}

// AddImage records an image produced by a translation pipeline.
func (c *AgentContext) AddImage(name string, data []byte) {
	if c.Images == nil {
		c.Images = make(map[string][]byte)
	}
	c.Images[name] = data
}
