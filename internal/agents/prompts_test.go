package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/agent"
)

func TestInterpolate(t *testing.T) {
	out := Interpolate("翻译{text}，领域{domain}", map[string]string{
		"text":   "这段话",
		"domain": "nlp",
	})
	assert.Equal(t, "翻译这段话，领域nlp", out)

	assert.Equal(t, "无占位符", Interpolate("无占位符", nil))
	assert.Equal(t, "{unknown}", Interpolate("{unknown}", map[string]string{"other": "x"}))
}

func TestRenderTranslationPrompt(t *testing.T) {
	p := DefaultPrompts()

	prompt := p.RenderTranslationPrompt(&agent.PromptProfile{
		Domain: "nlp",
		Terminology: map[string]string{
			"transformer": "变换器",
			"attention":   "注意力",
		},
		KeepEnglish: []string{"BERT", "GPT"},
	})

	assert.Contains(t, prompt, "领域：nlp")
	assert.Contains(t, prompt, "- attention → 注意力\n- transformer → 变换器")
	assert.Contains(t, prompt, "BERT, GPT")
}

func TestRenderTranslationPrompt_EmptyProfile(t *testing.T) {
	p := DefaultPrompts()
	prompt := p.RenderTranslationPrompt(&agent.PromptProfile{})

	assert.Contains(t, prompt, "领域：general")
	assert.Contains(t, prompt, "（无）")
}

func TestLoadPrompts_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("translateUser: \"自定义模板：{text}\"\n"), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "自定义模板：{text}", p.TranslateUser)
	assert.Equal(t, DefaultPrompts().TranslateSystem, p.TranslateSystem, "unset keys keep defaults")
}

func TestLoadPrompts_EmptyPathReturnsDefaults(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p)
}

func TestLoadPrompts_MissingFile(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadPrompts_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - broken"), 0o644))

	_, err := LoadPrompts(path)
	require.Error(t, err)
}
