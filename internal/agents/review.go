package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
)

// Score deductions per issue category.
const (
	termIssuePenalty     = 5
	formatIssuePenalty   = 3
	untranslatedPenalty  = 2
	untranslatedRunLines = 3

	// A lone token this short is a label or identifier, not prose.
	shortTokenMaxChars = 30

	// Renderings read from bracket patterns are capped at this many
	// ideographs.
	renderingRunMax = 12
)

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s`)
	separatorRe  = regexp.MustCompile(`^:?-+:?$`)
	emptyImageRe = regexp.MustCompile(`!\[[^\]]*\]\(\s*\)`)
	alphaRunRe   = regexp.MustCompile(`[A-Za-z]{2,}`)
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
)

// ReviewAgent grades a translation against the glossary and Markdown
// structure. It performs no I/O; the report is a pure function of
// TranslatedMD and Glossary.
type ReviewAgent struct {
	agent.BaseAgent
	log *logger.Logger
}

var _ agent.Agent = (*ReviewAgent)(nil)

// NewReviewAgent wires the agent.
func NewReviewAgent(log *logger.Logger) *ReviewAgent {
	if log == nil {
		log = logger.Default()
	}
	return &ReviewAgent{
		BaseAgent: agent.NewBaseAgent(events.AgentReview, "checks terminology consistency, format integrity and translation coverage"),
		log:       log.WithFields(zap.String("agent", events.AgentReview)),
	}
}

// Run reviews the translated document and stores the quality report on the
// context.
func (a *ReviewAgent) Run(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	if err := actx.CheckCancelled(); err != nil {
		return actx, err
	}
	actx.Publish(ctx, a.Name(), events.StageStarted, 75, nil)

	report := Review(actx.TranslatedMD, actx.Glossary)
	actx.QualityReport = report

	actx.Publish(ctx, a.Name(), events.StageCompleted, 85, map[string]any{
		"score":         report.Score,
		"term_issues":   len(report.TermIssues),
		"format_issues": len(report.FormatIssues),
		"untranslated":  len(report.UntranslatedParagraphs),
	})
	return actx, nil
}

// Review produces a quality report for translated Markdown. The score starts
// at 100 and loses 5 per terminology issue, 3 per format issue and 2 per
// untranslated block, clamped to [0,100].
func Review(translatedMD string, glossary map[string]string) *agent.QualityReport {
	lines := strings.Split(translatedMD, "\n")

	report := agent.NewQualityReport(100)
	report.TermIssues = checkTerminology(lines, glossary)
	report.FormatIssues = checkFormat(translatedMD, lines)
	report.UntranslatedParagraphs = findUntranslated(lines)

	score := 100 -
		termIssuePenalty*len(report.TermIssues) -
		formatIssuePenalty*len(report.FormatIssues) -
		untranslatedPenalty*len(report.UntranslatedParagraphs)
	if score < 0 {
		score = 0
	}
	report.Score = score
	report.Suggestions = buildSuggestions(report)
	return report
}

// checkTerminology flags glossary terms rendered in two or more distinct
// ways. Renderings are observed from the parenthetical conventions of
// translated papers, 译名（Term） and Term（译名）, plus the expected
// translation appearing anywhere on a line; locations cover every line any
// rendering was seen on.
func checkTerminology(lines []string, glossary map[string]string) []agent.TermIssue {
	terms := make([]string, 0, len(glossary))
	for en := range glossary {
		if strings.TrimSpace(en) != "" && strings.TrimSpace(glossary[en]) != "" {
			terms = append(terms, en)
		}
	}
	sort.Strings(terms)

	issues := make([]agent.TermIssue, 0)
	for _, en := range terms {
		expected := glossary[en]
		seen := map[string][]int{}

		needle := lowerRunes([]rune(en))
		expectedRunes := []rune(expected)
		for i, line := range lines {
			lineNo := i + 1
			runes := []rune(line)
			low := lowerRunes(runes)
			for _, pos := range runeIndexAll(low, needle) {
				for _, r := range renderingsAt(runes, pos, len(needle), expectedRunes) {
					seen[r] = append(seen[r], lineNo)
				}
			}
			if strings.Contains(line, expected) {
				seen[expected] = append(seen[expected], lineNo)
			}
		}

		if len(seen) < 2 {
			continue
		}

		renderings := make([]string, 0, len(seen))
		lineSet := map[int]bool{}
		for r, ls := range seen {
			renderings = append(renderings, r)
			for _, n := range ls {
				lineSet[n] = true
			}
		}
		sort.Strings(renderings)

		nums := make([]int, 0, len(lineSet))
		for n := range lineSet {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		locations := make([]string, len(nums))
		for j, n := range nums {
			locations[j] = "Line " + strconv.Itoa(n)
		}

		issues = append(issues, agent.TermIssue{
			EnglishTerm:  en,
			Translations: renderings,
			Locations:    locations,
			Suggested:    expected,
		})
	}
	return issues
}

// lowerRunes lowercases rune by rune, preserving offsets.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// runeIndexAll returns every start offset of needle in haystack.
func runeIndexAll(haystack, needle []rune) []int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return nil
	}
	var out []int
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out
}

// renderingsAt extracts the renderings around one occurrence of the English
// term at [pos, pos+length). 译名（Term）: the ideograph run ending at the
// opening bracket before the term. Term（译名）: the bracketed ideograph run
// after it. A run ending with the expected translation is normalized to it;
// other runs keep at most the expected translation's length from their tail,
// so leading prose does not masquerade as part of the rendering.
func renderingsAt(line []rune, pos, length int, expected []rune) []string {
	var out []string

	i := pos - 1
	for i >= 0 && unicode.IsSpace(line[i]) {
		i--
	}
	if i >= 0 && isOpenBracket(line[i]) {
		var run []rune
		for j := i - 1; j >= 0 && unicode.Is(unicode.Han, line[j]) && len(run) < renderingRunMax; j-- {
			run = append([]rune{line[j]}, run...)
		}
		if r := normalizeRendering(run, expected); r != "" {
			out = append(out, r)
		}
	}

	k := pos + length
	for k < len(line) && unicode.IsSpace(line[k]) {
		k++
	}
	if k < len(line) && isOpenBracket(line[k]) {
		k++
		var run []rune
		for k < len(line) && unicode.Is(unicode.Han, line[k]) && len(run) < renderingRunMax {
			run = append(run, line[k])
			k++
		}
		if len(run) > 0 && k < len(line) && isCloseBracket(line[k]) {
			out = append(out, string(run))
		}
	}
	return out
}

// normalizeRendering collapses a bracket-adjacent ideograph run to the
// rendering it carries.
func normalizeRendering(run, expected []rune) string {
	if len(run) == 0 {
		return ""
	}
	if len(expected) > 0 && len(run) >= len(expected) {
		tail := run[len(run)-len(expected):]
		if string(tail) == string(expected) {
			return string(expected)
		}
		return string(tail)
	}
	return string(run)
}

func isOpenBracket(r rune) bool {
	switch r {
	case '(', '（', '[', '【', '「', '『':
		return true
	}
	return false
}

func isCloseBracket(r rune) bool {
	switch r {
	case ')', '）', ']', '】', '」', '』':
		return true
	}
	return false
}

// checkFormat flags broken tables, unclosed math, heading level jumps and
// image references with empty paths.
func checkFormat(doc string, lines []string) []agent.FormatIssue {
	issues := make([]agent.FormatIssue, 0)
	issues = append(issues, checkTables(lines)...)
	issues = append(issues, checkMath(doc, lines)...)
	if issue := checkHeadings(lines); issue != nil {
		issues = append(issues, *issue)
	}
	issues = append(issues, checkImages(lines)...)
	return issues
}

// checkTables scans contiguous pipe-prefixed line runs. A table whose
// non-separator rows disagree on column count is broken. A malformed
// separator row (cells not all dashes) counts as a content row.
func checkTables(lines []string) []agent.FormatIssue {
	issues := make([]agent.FormatIssue, 0)

	start := -1
	counts := map[int]bool{}
	flush := func(end int) {
		if start >= 0 && len(counts) > 1 {
			issues = append(issues, agent.FormatIssue{
				Kind:        agent.FormatBrokenTable,
				Location:    "Line " + strconv.Itoa(start+1),
				Description: fmt.Sprintf("table rows disagree on column count (%d variants)", len(counts)),
			})
		}
		start = -1
		counts = map[int]bool{}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
		cells := splitTableRow(trimmed)
		if !isSeparatorRow(cells) {
			counts[len(cells)] = true
		}
	}
	flush(len(lines))
	return issues
}

// splitTableRow returns the cells of one pipe row, outer pipes stripped.
func splitTableRow(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	return strings.Split(row, "|")
}

// isSeparatorRow reports whether every cell is a dashes-with-optional-colons
// alignment marker.
func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if !separatorRe.MatchString(strings.TrimSpace(cell)) {
			return false
		}
	}
	return true
}

// checkMath flags an unbalanced display-math document (odd $$ count, first
// $$ line reported) and, after stripping display math, code fences and
// inline code, every line whose residual $ count is odd.
func checkMath(doc string, lines []string) []agent.FormatIssue {
	issues := make([]agent.FormatIssue, 0)

	if strings.Count(doc, "$$")%2 == 1 {
		for i, line := range lines {
			if strings.Contains(line, "$$") {
				issues = append(issues, agent.FormatIssue{
					Kind:        agent.FormatMissingFormula,
					Location:    "Line " + strconv.Itoa(i+1),
					Description: "unbalanced $$ display math delimiter",
				})
				break
			}
		}
	}

	inFence := false
	inMath := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		wasInMath := inMath
		if strings.Count(line, "$$")%2 == 1 {
			inMath = !inMath
		}
		if wasInMath {
			continue
		}

		residual := strings.ReplaceAll(line, "$$", "")
		residual = inlineCodeRe.ReplaceAllString(residual, "")
		if strings.Count(residual, "$")%2 == 1 {
			issues = append(issues, agent.FormatIssue{
				Kind:        agent.FormatMissingFormula,
				Location:    "Line " + strconv.Itoa(i+1),
				Description: "unclosed inline math delimiter",
			})
		}
	}
	return issues
}

// checkHeadings flags the first heading whose level jumps more than one
// step past the previously seen level. The document's first heading sets
// the baseline and is never flagged.
func checkHeadings(lines []string) *agent.FormatIssue {
	prev := 0
	for i, line := range lines {
		m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		level := len(m[1])
		if prev > 0 && level > prev+1 {
			return &agent.FormatIssue{
				Kind:        agent.FormatBrokenHeading,
				Location:    "Line " + strconv.Itoa(i+1),
				Description: fmt.Sprintf("heading level jumps from %d to %d", prev, level),
			}
		}
		prev = level
	}
	return nil
}

// checkImages flags image references whose path is empty or whitespace.
func checkImages(lines []string) []agent.FormatIssue {
	issues := make([]agent.FormatIssue, 0)
	for i, line := range lines {
		for range emptyImageRe.FindAllString(line, -1) {
			issues = append(issues, agent.FormatIssue{
				Kind:        agent.FormatMissingImage,
				Location:    "Line " + strconv.Itoa(i+1),
				Description: "image reference has an empty path",
			})
		}
	}
	return issues
}

// findUntranslated reports runs of three or more consecutive prose lines
// with no CJK ideographs. Code fences, display math, headings, short lone
// tokens and lines without a two-letter ASCII run end a run without
// qualifying for it.
func findUntranslated(lines []string) []string {
	blocks := make([]string, 0)
	var run []string

	flush := func() {
		if len(run) >= untranslatedRunLines {
			blocks = append(blocks, strings.Join(run, "\n"))
		}
		run = nil
	}

	inFence := false
	inMath := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			flush()
			continue
		}
		wasInMath := inMath
		if strings.Count(line, "$$")%2 == 1 {
			inMath = !inMath
		}
		if inFence || wasInMath || strings.Contains(line, "$$") {
			flush()
			continue
		}

		if !qualifiesUntranslated(trimmed) {
			flush()
			continue
		}
		run = append(run, trimmed)
	}
	flush()
	return blocks
}

func qualifiesUntranslated(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	if headingRe.MatchString(trimmed) {
		return false
	}
	if containsCJK(trimmed) {
		return false
	}
	if !strings.Contains(trimmed, " ") && len([]rune(trimmed)) <= shortTokenMaxChars {
		return false
	}
	return alphaRunRe.MatchString(trimmed)
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// buildSuggestions renders one human-readable summary per issue category,
// naming the recommended rendering for every inconsistent term.
func buildSuggestions(report *agent.QualityReport) []string {
	suggestions := make([]string, 0, 3)

	if len(report.TermIssues) > 0 {
		parts := make([]string, 0, len(report.TermIssues))
		for _, issue := range report.TermIssues {
			parts = append(parts, fmt.Sprintf("%s 统一译为「%s」", issue.EnglishTerm, issue.Suggested))
		}
		suggestions = append(suggestions, "术语翻译不一致，建议："+strings.Join(parts, "；"))
	}
	if len(report.FormatIssues) > 0 {
		suggestions = append(suggestions, fmt.Sprintf("发现 %d 处格式问题，请核对表格、公式、标题层级与图片引用", len(report.FormatIssues)))
	}
	if len(report.UntranslatedParagraphs) > 0 {
		suggestions = append(suggestions, fmt.Sprintf("发现 %d 处未翻译的英文段落，请补充翻译", len(report.UntranslatedParagraphs)))
	}
	return suggestions
}
