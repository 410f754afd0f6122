package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/paper"
	"github.com/papertrans/papertrans/internal/provider"
)

type fakePaperRepo struct {
	upserted  []*paper.Metadata
	upsertErr error
}

func (f *fakePaperRepo) Upsert(ctx context.Context, meta *paper.Metadata) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, meta)
	return nil
}

func (f *fakePaperRepo) Get(ctx context.Context, id string) (*paper.Metadata, error) {
	return nil, paper.ErrNotFound
}

func (f *fakePaperRepo) List(ctx context.Context, limit int) ([]*paper.Metadata, error) {
	return f.upserted, nil
}

func (f *fakePaperRepo) Search(ctx context.Context, query string) ([]*paper.Metadata, error) {
	return nil, nil
}

func (f *fakePaperRepo) SearchByDomain(ctx context.Context, domain string) ([]*paper.Metadata, error) {
	return nil, nil
}

func (f *fakePaperRepo) SearchByKeyword(ctx context.Context, keyword string) ([]*paper.Metadata, error) {
	return nil, nil
}

func (f *fakePaperRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

// indexLLM answers every Complete with a fixed payload.
type indexLLM struct {
	payload string
	err     error
}

func (f *indexLLM) Complete(ctx context.Context, system, user string) (string, error) {
	return f.payload, f.err
}

const indexMetadataJSON = `{
	"title": "Attention Is All You Need",
	"title_zh": "注意力就是一切",
	"authors": ["Vaswani"],
	"abstract": "提出变换器架构。",
	"domain": "nlp",
	"research_problem": "序列建模",
	"methodology": "自注意力",
	"contributions": ["提出自注意力架构"],
	"keywords": ["transformer", "attention"],
	"tags": ["architecture"],
	"base_models": [],
	"year": 2017,
	"venue": "NeurIPS"
}`

func newIndexContext(t *testing.T) *agent.AgentContext {
	t.Helper()
	actx := agent.NewAgentContext("task0001", "attention.pdf", nil)
	actx.Bus = nil
	actx.TranslatedMD = "# 注意力就是一切\n\n我们提出变换器架构。\n"
	actx.Glossary = map[string]string{
		"self-attention": "自注意力",
		"encoder":        "编码器",
	}
	actx.QualityReport = agent.NewQualityReport(88)
	return actx
}

func TestIndexAgent_RunIndexesPaper(t *testing.T) {
	repo := &fakePaperRepo{}
	a := NewIndexAgent(&indexLLM{payload: indexMetadataJSON}, nil, repo, nil, newAgentsTestLogger(t))

	b, sub := newBusAndSub(t, "task0001")
	actx := newIndexContext(t)
	actx.Bus = b

	_, err := agent.Invoke(context.Background(), a, actx)
	require.NoError(t, err)

	require.Len(t, repo.upserted, 1)
	meta := repo.upserted[0]
	assert.Equal(t, "task0001", meta.ID)
	assert.Equal(t, "attention.pdf", meta.Filename)
	assert.Equal(t, "Attention Is All You Need", meta.Title)
	assert.Equal(t, "注意力就是一切", meta.TitleZH)
	assert.Equal(t, "nlp", meta.Domain)
	assert.Equal(t, 88, meta.QualityScore)
	require.NotNil(t, meta.Year)
	assert.Equal(t, 2017, *meta.Year)
	assert.False(t, meta.CreatedAt.IsZero())

	// Glossary terms top the keywords up behind the extracted ones.
	assert.Equal(t, []string{"transformer", "attention", "encoder", "self-attention"}, meta.Keywords)

	require.NotNil(t, actx.PaperMetadata)
	assert.Equal(t, "task0001", actx.PaperMetadata["id"])

	evs := drainEvents(sub)
	completed := findEvents(evs, events.AgentIndex, events.StageCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 96, completed[0].Progress)
}

func TestIndexAgent_RunSkipsWithoutTranslation(t *testing.T) {
	repo := &fakePaperRepo{}
	a := NewIndexAgent(&indexLLM{payload: indexMetadataJSON}, nil, repo, nil, newAgentsTestLogger(t))

	b, sub := newBusAndSub(t, "task0001")
	actx := newIndexContext(t)
	actx.Bus = b
	actx.TranslatedMD = "   "

	_, err := agent.Invoke(context.Background(), a, actx)
	require.NoError(t, err)
	assert.Empty(t, repo.upserted)

	evs := drainEvents(sub)
	require.Len(t, findEvents(evs, events.AgentIndex, events.StageSkipped), 1)
}

func TestIndexAgent_RunFallsBackOnLLMFailure(t *testing.T) {
	repo := &fakePaperRepo{}
	llm := &indexLLM{err: provider.Transient("llm", "complete", errors.New("timeout"))}
	a := NewIndexAgent(llm, nil, repo, nil, newAgentsTestLogger(t))

	actx := newIndexContext(t)
	actx.Profile = &agent.PromptProfile{Domain: "nlp"}

	_, err := agent.Invoke(context.Background(), a, actx)
	require.NoError(t, err)

	require.Len(t, repo.upserted, 1)
	meta := repo.upserted[0]
	assert.Equal(t, "注意力就是一切", meta.Title)
	assert.Equal(t, "注意力就是一切", meta.TitleZH)
	assert.Equal(t, "nlp", meta.Domain)
	assert.NotContains(t, meta.Abstract, "#")
}

func TestIndexAgent_RunEmbedsWhenConfigured(t *testing.T) {
	repo := &fakePaperRepo{}
	embed := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	a := NewIndexAgent(&indexLLM{payload: indexMetadataJSON}, embed, repo, nil, newAgentsTestLogger(t))

	actx := newIndexContext(t)
	_, err := agent.Invoke(context.Background(), a, actx)
	require.NoError(t, err)

	assert.Equal(t, 1, embed.calls)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, []float32{0.1, 0.2}, repo.upserted[0].Embedding)
}

func TestIndexAgent_RunEmbeddingFailureIsNonFatal(t *testing.T) {
	repo := &fakePaperRepo{}
	embed := &fakeEmbedder{err: errors.New("model missing")}
	a := NewIndexAgent(&indexLLM{payload: indexMetadataJSON}, embed, repo, nil, newAgentsTestLogger(t))

	actx := newIndexContext(t)
	_, err := agent.Invoke(context.Background(), a, actx)
	require.NoError(t, err)

	require.Len(t, repo.upserted, 1)
	assert.Nil(t, repo.upserted[0].Embedding)
}

func TestIndexAgent_RunRepositoryErrorPropagates(t *testing.T) {
	repo := &fakePaperRepo{upsertErr: errors.New("db locked")}
	a := NewIndexAgent(&indexLLM{payload: indexMetadataJSON}, nil, repo, nil, newAgentsTestLogger(t))

	actx := newIndexContext(t)
	_, err := agent.Invoke(context.Background(), a, actx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index paper")
}

func TestEnrichKeywords(t *testing.T) {
	glossary := map[string]string{
		"attention":   "注意力",
		"transformer": "变换器",
		"encoder":     "编码器",
	}

	t.Run("deduplicates case insensitively", func(t *testing.T) {
		out := enrichKeywords([]string{"Attention", "attention", " transformer "}, glossary)
		assert.Equal(t, []string{"Attention", "transformer", "encoder"}, out)
	})

	t.Run("caps at the limit", func(t *testing.T) {
		many := map[string]string{}
		for _, k := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "b1", "b2", "b3"} {
			many[k] = "x"
		}
		out := enrichKeywords(nil, many)
		assert.Len(t, out, maxKeywords)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, enrichKeywords(nil, nil))
	})
}

func TestFallbackMetadata(t *testing.T) {
	actx := agent.NewAgentContext("task0001", "paper.pdf", nil)
	actx.TranslatedMD = "# 论文标题\n\n**摘要**：这是正文第一段。\n"
	actx.Glossary = map[string]string{"bert": "BERT 模型"}

	meta := fallbackMetadata(actx)
	assert.Equal(t, "论文标题", meta.Title)
	assert.Equal(t, "论文标题", meta.TitleZH)
	assert.Equal(t, "general", meta.Domain)
	assert.Equal(t, []string{"bert"}, meta.Keywords)
	assert.NotContains(t, meta.Abstract, "#")
	assert.NotContains(t, meta.Abstract, "*")
}
