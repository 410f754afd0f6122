package agents

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/papertrans/papertrans/internal/agent"
)

// Default prompt templates. Placeholders use {name} and are interpolated
// with Interpolate; a prompts.yaml (workflow.promptsPath) can override any
// field, missing keys keep the defaults.

const defaultTerminologySystem = `你是学术论文术语提取专家。只输出 JSON，不要输出任何解释。`

const defaultTerminologyUser = `从以下{domain}领域的论文文本中提取英文术语及其规范中文翻译。
输出 JSON 数组，每项形如 {"english": "...", "chinese": "...", "keep_english": false}。
模型名、算法缩写等专有名词将 keep_english 设为 true。最多 30 项。

文本：
{text}`

const defaultProfileSystem = `你是学术翻译顾问。只输出 JSON，不要输出任何解释。`

const defaultProfileUser = `分析以下论文开头，输出 JSON 对象：
{"domain": "领域标签（英文小写，如 nlp、cv）", "terminology": {"英文术语": "中文翻译"}, "keep_english": ["保留英文不译的术语"]}

论文开头：
{text}`

const defaultTranslateSystem = `你是专业的学术论文翻译引擎，将英文学术论文翻译为简体中文。
领域：{domain}

术语表（必须严格遵守）：
{terminology}

以下术语保留英文，不要翻译：{keep_english}

要求：
- 保持 Markdown 结构不变，标题、表格、图片引用原样保留
- LaTeX 公式（$...$ 与 $$...$$）内容不译
- 代码块内容不译
- 学术语气，表达准确流畅
只输出翻译结果。`

const defaultTranslateUser = `翻译以下内容：

{text}`

const defaultIndexSystem = `你是论文元数据提取助手。只输出 JSON，不要输出任何解释。`

const defaultIndexUser = `从以下论文译文中提取元数据，输出 JSON 对象：
{"title": "英文标题", "title_zh": "中文标题", "authors": ["作者"], "abstract": "中文摘要（300字以内）", "domain": "领域标签（英文小写）", "research_problem": "研究问题", "methodology": "方法概述", "contributions": ["主要贡献"], "keywords": ["关键词"], "tags": ["标签"], "base_models": ["使用的基础模型"], "year": 2024, "venue": "发表会议或期刊"}
未知字段用空字符串、空数组或 null。

译文：
{text}`

// Prompts holds every template the agents send to the LLM.
type Prompts struct {
	TerminologySystem string `yaml:"terminologySystem"`
	TerminologyUser   string `yaml:"terminologyUser"`
	ProfileSystem     string `yaml:"profileSystem"`
	ProfileUser       string `yaml:"profileUser"`
	TranslateSystem   string `yaml:"translateSystem"`
	TranslateUser     string `yaml:"translateUser"`
	IndexSystem       string `yaml:"indexSystem"`
	IndexUser         string `yaml:"indexUser"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	return &Prompts{
		TerminologySystem: defaultTerminologySystem,
		TerminologyUser:   defaultTerminologyUser,
		ProfileSystem:     defaultProfileSystem,
		ProfileUser:       defaultProfileUser,
		TranslateSystem:   defaultTranslateSystem,
		TranslateUser:     defaultTranslateUser,
		IndexSystem:       defaultIndexSystem,
		IndexUser:         defaultIndexUser,
	}
}

// LoadPrompts returns the defaults overlaid with any templates found in the
// YAML file at path. An empty path returns the defaults unchanged.
func LoadPrompts(path string) (*Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	if override.TerminologySystem != "" {
		prompts.TerminologySystem = override.TerminologySystem
	}
	if override.TerminologyUser != "" {
		prompts.TerminologyUser = override.TerminologyUser
	}
	if override.ProfileSystem != "" {
		prompts.ProfileSystem = override.ProfileSystem
	}
	if override.ProfileUser != "" {
		prompts.ProfileUser = override.ProfileUser
	}
	if override.TranslateSystem != "" {
		prompts.TranslateSystem = override.TranslateSystem
	}
	if override.TranslateUser != "" {
		prompts.TranslateUser = override.TranslateUser
	}
	if override.IndexSystem != "" {
		prompts.IndexSystem = override.IndexSystem
	}
	if override.IndexUser != "" {
		prompts.IndexUser = override.IndexUser
	}
	return prompts, nil
}

// Interpolate replaces {name} placeholders in a template.
func Interpolate(template string, vars map[string]string) string {
	result := template
	for name, value := range vars {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	return result
}

// RenderTranslationPrompt builds the system prompt for one profile: the
// domain, the terminology table line by line, and the keep-English list.
func (p *Prompts) RenderTranslationPrompt(profile *agent.PromptProfile) string {
	terms := make([]string, 0, len(profile.Terminology))
	for en := range profile.Terminology {
		terms = append(terms, en)
	}
	sort.Strings(terms)

	var table strings.Builder
	for _, en := range terms {
		fmt.Fprintf(&table, "- %s → %s\n", en, profile.Terminology[en])
	}
	terminology := strings.TrimRight(table.String(), "\n")
	if terminology == "" {
		terminology = "（无）"
	}

	keep := strings.Join(profile.KeepEnglish, ", ")
	if keep == "" {
		keep = "（无）"
	}

	domain := profile.Domain
	if domain == "" {
		domain = "general"
	}

	return Interpolate(p.TranslateSystem, map[string]string{
		"domain":       domain,
		"terminology":  terminology,
		"keep_english": keep,
	})
}
