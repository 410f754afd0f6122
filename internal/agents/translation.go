package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/provider"
)

const (
	translationMaxAttempts = 3

	// Backoff between attempts grows linearly: attempt × this step.
	translationBackoffStep = 500 * time.Millisecond

	// How much document text feeds profile generation.
	profileSampleChars = 2000
)

// profileResponse is the wire shape the profile prompt asks the LLM for.
type profileResponse struct {
	Domain      string            `json:"domain"`
	Terminology map[string]string `json:"terminology"`
	KeepEnglish []string          `json:"keep_english"`
}

// TranslationAgent builds the prompt profile and runs the pipeline matching
// the context's PipelineType, with retry around the whole pipeline
// execution.
type TranslationAgent struct {
	agent.BaseAgent
	llm         provider.TranslationService
	prompts     *Prompts
	concurrency int
	log         *logger.Logger
}

var _ agent.Agent = (*TranslationAgent)(nil)

// NewTranslationAgent wires the agent. concurrency caps parallel segment
// requests; values below 1 fall back to 5.
func NewTranslationAgent(llm provider.TranslationService, prompts *Prompts, concurrency int, log *logger.Logger) *TranslationAgent {
	if log == nil {
		log = logger.Default()
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if concurrency < 1 {
		concurrency = 5
	}
	return &TranslationAgent{
		BaseAgent:   agent.NewBaseAgent(events.AgentTranslation, "translates the prepared document to Chinese"),
		llm:         llm,
		prompts:     prompts,
		concurrency: concurrency,
		log:         log.WithFields(zap.String("agent", events.AgentTranslation)),
	}
}

// Run translates the prepared document. On an auto-fix rerun (profile set,
// translation present) prompt generation is skipped, the profile is reused
// verbatim and the earlier translation is discarded.
func (t *TranslationAgent) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}
	actx.Publish(ctx, t.Name(), events.StageStarted, 26, nil)

	if actx.Profile != nil && actx.TranslatedMD != "" {
		actx.TranslatedMD = ""
	} else {
		profile, err := t.generateProfile(ctx, actx)
		if err != nil {
			return actx, err
		}
		actx.Profile = profile
	}

	result, err := t.executeWithRetry(ctx, actx, t.pipelineFor(actx))
	if err != nil {
		return actx, err
	}

	actx.TranslatedMD = result.TranslatedMD
	for name, data := range result.Images {
		actx.AddImage(name, data)
	}
	if result.Profile != nil {
		actx.Profile = result.Profile
	}

	actx.Publish(ctx, t.Name(), events.StageCompleted, 70, map[string]any{
		"chars": len(result.TranslatedMD),
	})
	return actx, nil
}

// generateProfile analyzes the document opening into a PromptProfile, folds
// the shared glossary into its terminology (profile entries win) and renders
// the translation prompt. Analysis failures degrade to a default profile;
// only cancellation propagates.
func (t *TranslationAgent) generateProfile(ctx context.Context, actx *agent.AgentContext) (*agent.PromptProfile, error) {
	profile := &agent.PromptProfile{
		Domain:      "general",
		Terminology: map[string]string{},
	}

	excerpt := documentExcerpt(actx, profileSampleChars)
	if excerpt != "" && t.llm != nil {
		user := Interpolate(t.prompts.ProfileUser, map[string]string{"text": excerpt})
		raw, err := t.llm.Complete(ctx, t.prompts.ProfileSystem, user)
		switch {
		case agent.IsCancellation(err):
			return nil, err
		case err != nil:
			t.log.Warn("document analysis failed, using default profile",
				zap.String("task_id", actx.TaskID),
				zap.Error(err),
			)
		default:
			var parsed profileResponse
			if derr := provider.DecodeObject(raw, &parsed); derr != nil {
				t.log.Warn("document analysis returned no profile, using default",
					zap.String("task_id", actx.TaskID),
					zap.Error(derr),
				)
			} else {
				if parsed.Domain != "" {
					profile.Domain = parsed.Domain
				}
				if parsed.Terminology != nil {
					profile.Terminology = parsed.Terminology
				}
				profile.KeepEnglish = parsed.KeepEnglish
			}
		}
	}

	profile.MergeTerminology(actx.Glossary)
	profile.GeneratedPrompt = t.prompts.RenderTranslationPrompt(profile)
	return profile, nil
}

func (t *TranslationAgent) pipelineFor(actx *agent.AgentContext) Pipeline {
	if actx.PipelineType == agent.PipelineOCR {
		return &ocrPipeline{llm: t.llm, prompts: t.prompts, concurrency: t.concurrency, log: t.log}
	}
	return &llmPipeline{llm: t.llm, prompts: t.prompts, concurrency: t.concurrency, log: t.log}
}

// executeWithRetry runs the pipeline up to translationMaxAttempts times.
// Cancellation and permanent provider errors stop immediately; anything
// else backs off attempt × step and tries again. The aggregated error names
// the last underlying cause.
func (t *TranslationAgent) executeWithRetry(ctx context.Context, actx *agent.AgentContext, p Pipeline) (*PipelineResult, error) {
	var lastErr error
	for attempt := 1; attempt <= translationMaxAttempts; attempt++ {
		if err := actx.CheckCancelled(); err != nil {
			return nil, err
		}

		result, err := p.Execute(ctx, actx)
		if err == nil {
			actx.Publish(ctx, t.Name(), events.StageTranslating, 68, map[string]any{
				"attempt": attempt,
				"status":  "success",
			})
			return result, nil
		}
		if agent.IsCancellation(err) {
			return nil, err
		}
		var perr *provider.Error
		if errors.As(err, &perr) && !perr.Recoverable {
			return nil, fmt.Errorf("translation attempt %d: %w", attempt, err)
		}

		lastErr = err
		t.log.Warn("translation attempt failed",
			zap.String("task_id", actx.TaskID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == translationMaxAttempts {
			break
		}

		actx.Publish(ctx, t.Name(), events.StageRetrying, actx.LastProgress(), map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if err := sleepBackoff(ctx, time.Duration(attempt)*translationBackoffStep); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("translation failed after %d attempts: %w", translationMaxAttempts, lastErr)
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// documentExcerpt returns up to maxChars of the prepared document's text.
func documentExcerpt(actx *agent.AgentContext, maxChars int) string {
	if actx.OCRMarkdown != "" {
		runes := []rune(actx.OCRMarkdown)
		if len(runes) > maxChars {
			return string(runes[:maxChars])
		}
		return actx.OCRMarkdown
	}
	if actx.ParsedPDF != nil {
		return actx.ParsedPDF.ExtractText(maxChars)
	}
	return ""
}
