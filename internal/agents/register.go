package agents

import (
	"fmt"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/glossary"
	"github.com/papertrans/papertrans/internal/paper"
	"github.com/papertrans/papertrans/internal/provider"
	"github.com/papertrans/papertrans/internal/transtore"
)

// Deps aggregates the shared dependencies of the workflow agents. Prompts
// defaults to the built-in set when nil.
type Deps struct {
	Providers    *provider.Services
	Glossary     *glossary.Store
	Papers       paper.Repository
	Translations *transtore.Store
	Prompts      *Prompts
	Concurrency  int
	ProviderName string
	Model        string
	Logger       *logger.Logger
}

// Register wires the five workflow agents and the orchestrator into reg
// under their canonical names. Constructors close over deps, so each
// Resolve yields a fresh agent against the same collaborators.
func Register(reg *agent.Registry, deps Deps) error {
	prompts := deps.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}

	var llm provider.TranslationService
	var ocr provider.OCRService
	var embed provider.EmbeddingService
	if deps.Providers != nil {
		llm = deps.Providers.LLM
		ocr = deps.Providers.OCR
		embed = deps.Providers.Embedding
	}

	entries := []struct {
		key  string
		ctor agent.Constructor
	}{
		{events.AgentTerminology, func() (agent.Agent, error) {
			return NewTerminologyAgent(llm, deps.Glossary, prompts, log), nil
		}},
		{events.AgentOCR, func() (agent.Agent, error) {
			return NewOCRAgent(ocr, log), nil
		}},
		{events.AgentTranslation, func() (agent.Agent, error) {
			return NewTranslationAgent(llm, prompts, deps.Concurrency, log), nil
		}},
		{events.AgentReview, func() (agent.Agent, error) {
			return NewReviewAgent(log), nil
		}},
		{events.AgentIndex, func() (agent.Agent, error) {
			return NewIndexAgent(llm, embed, deps.Papers, prompts, log), nil
		}},
		{events.AgentOrchestrator, func() (agent.Agent, error) {
			return NewOrchestratorFromRegistry(reg, OrchestratorDeps{
				Store:    deps.Translations,
				Provider: deps.ProviderName,
				Model:    deps.Model,
				Logger:   log,
			})
		}},
	}
	for _, e := range entries {
		if err := reg.Register(e.key, e.ctor); err != nil {
			return fmt.Errorf("register workflow agents: %w", err)
		}
	}
	return nil
}
