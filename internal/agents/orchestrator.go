package agents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
	"github.com/papertrans/papertrans/internal/tracing"
	"github.com/papertrans/papertrans/internal/transtore"
)

// Reviews scoring below this trigger one auto-fix rerun of translation and
// review.
const autoFixThreshold = 70

// OrchestratorDeps carries the collaborators of one orchestrator. Store may
// be nil to skip persistence; Provider and Model only annotate saved
// metadata.
type OrchestratorDeps struct {
	Terminology agent.Agent
	OCR         agent.Agent
	Translation agent.Agent
	Review      agent.Agent
	Index       agent.Agent
	Store       *transtore.Store
	Provider    string
	Model       string
	Logger      *logger.Logger
}

// OrchestratorAgent schedules the translation phases in strict order,
// applies the quality-gated auto-fix rerun and persists the finished
// translation. Terminology, indexing and persistence are best-effort;
// document preparation, translation and review failures end the task.
type OrchestratorAgent struct {
	agent.BaseAgent
	terminology agent.Agent
	ocr         agent.Agent
	translation agent.Agent
	review      agent.Agent
	index       agent.Agent
	store       *transtore.Store
	provider    string
	model       string
	tracer      trace.Tracer
	log         *logger.Logger
}

var _ agent.Agent = (*OrchestratorAgent)(nil)

// NewOrchestratorAgent wires the orchestrator with explicit collaborators.
// This is the production constructor; the registry variant serves the CLI
// and tests.
func NewOrchestratorAgent(deps OrchestratorDeps) *OrchestratorAgent {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	return &OrchestratorAgent{
		BaseAgent:   agent.NewBaseAgent(events.AgentOrchestrator, "runs the translation workflow phases in order"),
		terminology: deps.Terminology,
		ocr:         deps.OCR,
		translation: deps.Translation,
		review:      deps.Review,
		index:       deps.Index,
		store:       deps.Store,
		provider:    deps.Provider,
		model:       deps.Model,
		tracer:      tracing.Tracer("papertrans/orchestrator"),
		log:         log.WithFields(zap.String("agent", events.AgentOrchestrator)),
	}
}

// NewOrchestratorFromRegistry resolves the five workflow agents from a
// registry by their canonical names. Agent fields already set on deps are
// overwritten.
func NewOrchestratorFromRegistry(reg *agent.Registry, deps OrchestratorDeps) (*OrchestratorAgent, error) {
	for _, binding := range []struct {
		key    string
		target *agent.Agent
	}{
		{events.AgentTerminology, &deps.Terminology},
		{events.AgentOCR, &deps.OCR},
		{events.AgentTranslation, &deps.Translation},
		{events.AgentReview, &deps.Review},
		{events.AgentIndex, &deps.Index},
	} {
		a, err := reg.Resolve(binding.key)
		if err != nil {
			return nil, fmt.Errorf("resolve workflow agents: %w", err)
		}
		*binding.target = a
	}
	return NewOrchestratorAgent(deps), nil
}

// Run executes the workflow phases against the shared context. On normal
// exit the final complete/100 event is always emitted; fatal phase errors
// emit a failed event and propagate.
func (o *OrchestratorAgent) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	log := o.log.WithFields(zap.String("task_id", actx.TaskID))

	// Terminology preparation: best-effort, the workflow continues with
	// whatever glossary exists.
	if err := o.runPhase(ctx, actx, events.PhaseTerminology, 0, 15, o.terminology); err != nil {
		if agent.IsCancellation(err) {
			return actx, err
		}
		log.Warn("terminology preparation failed, continuing without extracted terms", zap.Error(err))
	}

	if err := o.runPhase(ctx, actx, events.PhaseOCR, 16, 25, o.ocr); err != nil {
		return actx, o.fail(ctx, actx, events.PhaseOCR, err)
	}
	if err := o.runPhase(ctx, actx, events.PhaseTranslation, 26, 70, o.translation); err != nil {
		return actx, o.fail(ctx, actx, events.PhaseTranslation, err)
	}
	if err := o.runPhase(ctx, actx, events.PhaseReview, 75, 85, o.review); err != nil {
		return actx, o.fail(ctx, actx, events.PhaseReview, err)
	}

	if err := o.autoFix(ctx, actx); err != nil {
		return actx, err
	}

	// Indexing: best-effort.
	if err := o.runPhase(ctx, actx, events.PhaseIndexing, 91, 96, o.index); err != nil {
		if agent.IsCancellation(err) {
			return actx, err
		}
		log.Warn("indexing failed, translation result is unaffected", zap.Error(err))
	}

	if err := o.persist(ctx, actx); err != nil {
		if agent.IsCancellation(err) {
			return actx, err
		}
		log.Warn("persisting translation failed, result stays in-memory", zap.Error(err))
	}

	actx.Publish(ctx, o.Name(), events.StageComplete, 100, nil)
	return actx, nil
}

// runPhase checks cancellation, brackets the agent invocation with phase
// boundary events and wraps it in a span. Nil agents make the phase a no-op.
func (o *OrchestratorAgent) runPhase(ctx context.Context, actx *agent.AgentContext, phase string, startProgress, endProgress int, a agent.Agent) error {
	if err := actx.CheckCancelled(); err != nil {
		return err
	}
	if a == nil {
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "phase."+phase,
		trace.WithAttributes(attribute.String("task_id", actx.TaskID)),
	)
	defer span.End()

	actx.Publish(ctx, o.Name(), phase, startProgress, map[string]any{"status": "started"})
	if _, err := agent.Invoke(ctx, a, actx); err != nil {
		span.RecordError(err)
		return err
	}
	actx.Publish(ctx, o.Name(), phase, endProgress, map[string]any{"status": "completed"})
	return nil
}

// autoFix reruns translation and review exactly once when the review score
// falls below the threshold. The prompt profile is reused and document
// preparation is not repeated. A failing rerun keeps the first result; a
// succeeding rerun's review is accepted whether or not the score improved.
func (o *OrchestratorAgent) autoFix(ctx context.Context, actx *agent.AgentContext) error {
	if actx.QualityReport == nil || actx.QualityReport.Score >= autoFixThreshold {
		return nil
	}
	if err := actx.CheckCancelled(); err != nil {
		return err
	}

	log := o.log.WithFields(zap.String("task_id", actx.TaskID))
	firstScore := actx.QualityReport.Score
	firstMD := actx.TranslatedMD
	firstReport := actx.QualityReport

	ctx, span := o.tracer.Start(ctx, "phase."+events.PhaseAutoFix,
		trace.WithAttributes(attribute.String("task_id", actx.TaskID)),
	)
	defer span.End()

	actx.Publish(ctx, o.Name(), events.PhaseAutoFix, 87, map[string]any{
		"status": "started",
		"score":  firstScore,
	})

	if _, err := agent.Invoke(ctx, o.translation, actx); err != nil {
		if agent.IsCancellation(err) {
			return err
		}
		span.RecordError(err)
		log.Warn("auto-fix translation failed, keeping first attempt", zap.Error(err))
		actx.TranslatedMD = firstMD
		actx.QualityReport = firstReport
	} else if _, err := agent.Invoke(ctx, o.review, actx); err != nil {
		if agent.IsCancellation(err) {
			return err
		}
		span.RecordError(err)
		log.Warn("auto-fix review failed, keeping first report", zap.Error(err))
		actx.QualityReport = firstReport
	}

	actx.Publish(ctx, o.Name(), events.PhaseAutoFix, 95, map[string]any{
		"status":      "completed",
		"score":       actx.QualityReport.Score,
		"first_score": firstScore,
	})
	return nil
}

// persist archives the finished translation and assigns the translation id.
func (o *OrchestratorAgent) persist(ctx context.Context, actx *agent.AgentContext) error {
	if err := actx.CheckCancelled(); err != nil {
		return err
	}
	if o.store == nil {
		return nil
	}

	actx.Publish(ctx, o.Name(), events.PhaseSaving, 97, map[string]any{"status": "started"})

	meta, err := o.store.Save(&transtore.Record{
		ID:            uuid.New().String(),
		Filename:      actx.Filename,
		TranslatedMD:  actx.TranslatedMD,
		OCRMarkdown:   actx.OCRMarkdown,
		Images:        actx.Images,
		QualityReport: actx.QualityReport,
		Provider:      o.provider,
		Model:         o.model,
		Profile:       actx.Profile,
	})
	if err != nil {
		return err
	}

	actx.TranslationID = meta.ID
	actx.Publish(ctx, o.Name(), events.PhaseSaving, 99, map[string]any{
		"status":         "completed",
		"translation_id": meta.ID,
	})
	return nil
}

// fail emits the failed sentinel event for a fatal phase error. Cancellation
// passes through silently; the stream layer reports it instead.
func (o *OrchestratorAgent) fail(ctx context.Context, actx *agent.AgentContext, phase string, err error) error {
	if agent.IsCancellation(err) {
		return err
	}
	o.log.Error("workflow phase failed",
		zap.String("task_id", actx.TaskID),
		zap.String("phase", phase),
		zap.Error(err),
	)
	actx.Publish(ctx, o.Name(), events.StageFailed, bus.HeartbeatProgress, map[string]any{
		"phase": phase,
		"error": err.Error(),
	})
	return fmt.Errorf("%s phase: %w", phase, err)
}
