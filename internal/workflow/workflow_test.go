package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
)

type stubOrchestrator struct {
	agent.BaseAgent
	run func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error)
}

func newStubOrchestrator(run func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error)) *stubOrchestrator {
	return &stubOrchestrator{
		BaseAgent: agent.NewBaseAgent(events.AgentOrchestrator, "test orchestrator"),
		run:       run,
	}
}

func (s *stubOrchestrator) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	return s.run(ctx, actx)
}

func newWorkflowTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func drainTaskEvents(sub *bus.Subscription) []*bus.Event {
	var out []*bus.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestNewTaskID(t *testing.T) {
	a := NewTaskID()
	b := NewTaskID()

	require.Len(t, a, 8)
	for _, r := range a {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
	assert.NotEqual(t, a, b)
}

func TestRun_GeneratesTaskIDWhenAbsent(t *testing.T) {
	var seen string
	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		seen = actx.TaskID
		return actx, nil
	})

	res, err := Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "paper.pdf",
		Orchestrator: orch,
	})
	require.NoError(t, err)
	require.Len(t, seen, 8)
	assert.Equal(t, seen, res.TaskID)
}

func TestRun_UsesCallerTaskID(t *testing.T) {
	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		return actx, nil
	})

	res, err := Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "paper.pdf",
		TaskID:       "task1234",
		Orchestrator: orch,
	})
	require.NoError(t, err)
	assert.Equal(t, "task1234", res.TaskID)
}

func TestRun_CollectsResult(t *testing.T) {
	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		actx.TranslatedMD = "# 注意力就是一切"
		actx.OCRMarkdown = "# Attention Is All You Need"
		actx.Glossary = map[string]string{"attention": "注意力"}
		actx.Images = map[string][]byte{"fig_1.png": {0x89}}
		actx.OCRImages = map[string][]byte{"page_1.png": {0xFF}}
		actx.QualityReport = agent.NewQualityReport(88)
		actx.Profile = &agent.PromptProfile{
			Domain:          "nlp",
			Terminology:     map[string]string{"attention": "注意力", "transformer": "变换器"},
			KeepEnglish:     []string{"BERT"},
			GeneratedPrompt: "你是一位NLP领域的学术翻译专家",
		}
		actx.TranslationID = "trans-001"
		return actx, nil
	})

	res, err := Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "attention.pdf",
		TaskID:       "task0001",
		Orchestrator: orch,
	})
	require.NoError(t, err)

	assert.Equal(t, "task0001", res.TaskID)
	assert.Equal(t, "trans-001", res.TranslationID)
	assert.Equal(t, "# 注意力就是一切", res.TranslatedMD)
	assert.Equal(t, res.TranslatedMD, res.Markdown)
	assert.Equal(t, "# Attention Is All You Need", res.OCRMarkdown)
	assert.Equal(t, map[string]string{"attention": "注意力"}, res.Glossary)
	assert.Contains(t, res.Images, "fig_1.png")
	assert.Contains(t, res.OCRImages, "page_1.png")

	require.NotNil(t, res.QualityReport)
	assert.Equal(t, float64(88), res.QualityReport["score"])

	require.NotNil(t, res.Profile)
	assert.Equal(t, "nlp", res.Profile.Domain)
	assert.Equal(t, 2, res.Profile.TerminologyCount)
	assert.Equal(t, []string{"BERT"}, res.Profile.KeepEnglish)
	assert.NotEmpty(t, res.Profile.GeneratedPrompt)
}

func TestRun_OmitsReportAndProfileWhenAbsent(t *testing.T) {
	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		actx.TranslatedMD = "# 文档"
		return actx, nil
	})

	res, err := Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "paper.pdf",
		Orchestrator: orch,
	})
	require.NoError(t, err)
	assert.Nil(t, res.QualityReport)
	assert.Nil(t, res.Profile)
}

func TestRun_RequiresRegisteredOrchestrator(t *testing.T) {
	_, err := Run(context.Background(), RunInput{
		FileContent: []byte("%PDF-1.4"),
		Filename:    "paper.pdf",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve orchestrator")
}

func TestRun_PropagatesOrchestratorError(t *testing.T) {
	boom := errors.New("translation exploded")
	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		return actx, boom
	})

	res, err := Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "paper.pdf",
		Orchestrator: orch,
	})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}

func TestRun_PublishesOnInjectedBus(t *testing.T) {
	b := bus.NewMemoryEventBus(newWorkflowTestLogger(t))
	t.Cleanup(b.Close)
	sub, err := b.Subscribe("task0001")
	require.NoError(t, err)

	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		actx.Publish(ctx, events.AgentOrchestrator, events.StageComplete, 100, nil)
		return actx, nil
	})

	_, err = Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "paper.pdf",
		TaskID:       "task0001",
		Bus:          b,
		Orchestrator: orch,
	})
	require.NoError(t, err)

	evs := drainTaskEvents(sub)
	require.Len(t, evs, 1)
	assert.Equal(t, events.StageComplete, evs[0].Stage)
	assert.Equal(t, 100, evs[0].Progress)
}

func TestRun_AppliesCallerToken(t *testing.T) {
	token := agent.NewCancellationToken()
	token.Cancel()

	orch := newStubOrchestrator(func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		return actx, actx.CheckCancelled()
	})

	_, err := Run(context.Background(), RunInput{
		FileContent:  []byte("%PDF-1.4"),
		Filename:     "paper.pdf",
		Token:        token,
		Orchestrator: orch,
	})
	require.Error(t, err)
	assert.True(t, agent.IsCancellation(err))
}
