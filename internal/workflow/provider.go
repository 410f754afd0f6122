package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/agents"
	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
	"github.com/papertrans/papertrans/internal/glossary"
	"github.com/papertrans/papertrans/internal/paper"
	"github.com/papertrans/papertrans/internal/provider"
	"github.com/papertrans/papertrans/internal/transtore"
)

// shutdownGrace bounds how long cleanup waits for running tasks.
const shutdownGrace = 10 * time.Second

// Runtime bundles the translation runtime: the event bus, the providers,
// the three stores, the agent registry and the async task service. The API
// layer and the CLI both run on top of one Runtime.
type Runtime struct {
	Bus          bus.EventBus
	Providers    *provider.Services
	Glossaries   *glossary.Store
	Papers       paper.Repository
	Translations *transtore.Store
	Registry     *agent.Registry
	Service      *Service
}

// Provide wires the full runtime from configuration. The returned cleanup
// drains running tasks and closes the stores and bus in reverse order of
// construction.
func Provide(cfg *config.Config, log *logger.Logger) (*Runtime, func() error, error) {
	provided, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	papers, papersCleanup, err := paper.Provide(cfg, log)
	if err != nil {
		_ = busCleanup()
		return nil, nil, err
	}

	prompts, err := agents.LoadPrompts(cfg.Workflow.PromptsPath)
	if err != nil {
		_ = papersCleanup()
		_ = busCleanup()
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}

	glossaries := glossary.NewStore(cfg.Storage.GlossaryDir(), log)
	translations := transtore.NewStore(cfg.Storage.DataDir, log)
	services := provider.Provide(cfg, log)

	registry := agent.NewRegistry()
	if err := agents.Register(registry, agents.Deps{
		Providers:    services,
		Glossary:     glossaries,
		Papers:       papers,
		Translations: translations,
		Prompts:      prompts,
		Concurrency:  cfg.Workflow.TranslationConcurrency,
		ProviderName: "openai",
		Model:        cfg.Providers.LLM.Model,
		Logger:       log,
	}); err != nil {
		_ = papersCleanup()
		_ = busCleanup()
		return nil, nil, err
	}

	svc, err := NewService(ServiceConfig{
		Bus:      provided.Bus,
		Registry: registry,
		Logger:   log,
	})
	if err != nil {
		_ = papersCleanup()
		_ = busCleanup()
		return nil, nil, err
	}

	runtime := &Runtime{
		Bus:          provided.Bus,
		Providers:    services,
		Glossaries:   glossaries,
		Papers:       papers,
		Translations: translations,
		Registry:     registry,
		Service:      svc,
	}

	cleanup := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		errShutdown := svc.Shutdown(ctx)
		errPapers := papersCleanup()
		errBus := busCleanup()
		if errShutdown != nil {
			return errShutdown
		}
		if errPapers != nil {
			return errPapers
		}
		return errBus
	}
	return runtime, cleanup, nil
}
