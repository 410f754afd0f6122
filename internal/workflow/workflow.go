// Package workflow provides the entry point that runs one document through
// the translation agents, and the asynchronous task service the HTTP layer
// drives. The entry point is synchronous; Service wraps it with goroutine
// management, cancellation tokens and an LRU directory of finished tasks.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
)

// RunInput carries everything one translation run needs. TaskID is generated
// when empty. Token defaults to a fresh uncancelled token, Bus to the
// process-global bus, and Orchestrator is resolved from the default agent
// registry when nil.
type RunInput struct {
	FileContent  []byte
	Filename     string
	TaskID       string
	EnableOCR    bool
	Token        *agent.CancellationToken
	Bus          bus.EventBus
	Orchestrator agent.Agent
}

// ProfileSummary is the caller-facing digest of the prompt profile used for
// the translation.
type ProfileSummary struct {
	Domain           string   `json:"domain"`
	TerminologyCount int      `json:"terminology_count"`
	KeepEnglish      []string `json:"keep_english"`
	GeneratedPrompt  string   `json:"generated_prompt"`
}

// Result is what a finished run returns. Markdown duplicates TranslatedMD
// for clients that predate the rename.
type Result struct {
	TaskID        string            `json:"task_id"`
	TranslationID string            `json:"translation_id"`
	Markdown      string            `json:"markdown"`
	TranslatedMD  string            `json:"translated_md"`
	OCRMarkdown   string            `json:"ocr_markdown,omitempty"`
	Images        map[string][]byte `json:"images"`
	OCRImages     map[string][]byte `json:"ocr_images"`
	QualityReport map[string]any    `json:"quality_report"`
	Glossary      map[string]string `json:"glossary"`
	Profile       *ProfileSummary   `json:"prompt_profile"`
}

// NewTaskID returns a fresh 8-hex-character task id.
func NewTaskID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Run executes the translation workflow for one document and returns the
// collected result. Progress events go to the input's bus for the duration
// of the run; subscribe before calling to observe them.
func Run(ctx context.Context, in RunInput) (*Result, error) {
	taskID := in.TaskID
	if taskID == "" {
		taskID = NewTaskID()
	}

	orch := in.Orchestrator
	if orch == nil {
		var err error
		orch, err = agent.DefaultRegistry().Resolve(events.AgentOrchestrator)
		if err != nil {
			return nil, fmt.Errorf("resolve orchestrator: %w", err)
		}
	}

	actx := agent.NewAgentContext(taskID, in.Filename, in.FileContent)
	actx.EnableOCR = in.EnableOCR
	if in.Token != nil {
		actx.Token = in.Token
	}
	if in.Bus != nil {
		actx.Bus = in.Bus
	}

	actx, err := agent.Invoke(ctx, orch, actx)
	if err != nil {
		return nil, err
	}
	return collectResult(actx), nil
}

// collectResult maps the finished context onto the result shape.
func collectResult(actx *agent.AgentContext) *Result {
	res := &Result{
		TaskID:        actx.TaskID,
		TranslationID: actx.TranslationID,
		Markdown:      actx.TranslatedMD,
		TranslatedMD:  actx.TranslatedMD,
		OCRMarkdown:   actx.OCRMarkdown,
		Images:        actx.Images,
		OCRImages:     actx.OCRImages,
		Glossary:      actx.Glossary,
	}
	if actx.QualityReport != nil {
		if m, err := actx.QualityReport.Map(); err == nil {
			res.QualityReport = m
		}
	}
	if p := actx.Profile; p != nil {
		res.Profile = &ProfileSummary{
			Domain:           p.Domain,
			TerminologyCount: len(p.Terminology),
			KeepEnglish:      p.KeepEnglish,
			GeneratedPrompt:  p.GeneratedPrompt,
		}
	}
	return res
}
