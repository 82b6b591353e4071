package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type promptRecorder struct {
	reply  string
	err    error
	prompt string
}

func (p *promptRecorder) Start(_ context.Context, prompt string) (string, error) {
	p.prompt = prompt
	return p.reply, p.err
}

func TestPrompts(t *testing.T) {
	code := "def f():\n    return 1"

	assert.Equal(t,
		"Please review this code and provide detailed feedback:\n```\n"+code+"\n```\n"+
			"Focus on:\n1. Code quality and style\n2. Potential bugs and issues\n3. Security concerns\n"+
			"4. Performance improvements\n5. Best practices",
		ReviewPrompt(code))

	assert.Equal(t,
		"Please analyze this code and provide a detailed report:\n```\n"+code+"\n```",
		AnalysisPrompt(code))
}

func TestReview_ReturnsRawAndParsesReport(t *testing.T) {
	agent := &promptRecorder{reply: "Here is the review:\n```json\n" +
		`{"issues":[{"type":"bug","severity":"High","file":"main.py","description":"result may be unbound"},` +
		`{"type":"style","severity":"low","file":"main.py","description":"use enumerate"}],"summary":"two issues",}` +
		"\n```"}

	res, err := NewProcessor(nil).Review(context.Background(), agent, "x = 1")
	require.NoError(t, err)

	assert.Equal(t, agent.reply, res.Raw)
	require.NotNil(t, res.Review)
	assert.Equal(t, "two issues", res.Review.Summary)
	assert.Equal(t, 2, res.Review.TotalIssues)
	assert.Equal(t, map[string]int{"high": 1, "low": 1}, res.Review.SeverityCounts)
	assert.Nil(t, res.Analysis)
}

func TestReview_ProseAnswerHasNoReport(t *testing.T) {
	agent := &promptRecorder{reply: "The code looks fine overall."}
	res, err := NewProcessor(nil).Review(context.Background(), agent, "x = 1")
	require.NoError(t, err)
	assert.Equal(t, "The code looks fine overall.", res.Raw)
	assert.Nil(t, res.Review)
}

func TestAnalyze_ParsesReport(t *testing.T) {
	agent := &promptRecorder{reply: `{"overall_quality": 72, "tech_stack": ["python"], "complexity_metrics": {"cyclomatic": 3}}`}
	res, err := NewProcessor(nil).Analyze(context.Background(), agent, "print('hi')")
	require.NoError(t, err)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, 72, res.Analysis.OverallQuality)
	assert.Equal(t, []string{"python"}, res.Analysis.TechStack)
	assert.Equal(t, 3, res.Analysis.ComplexityMetrics["cyclomatic"])
	assert.True(t, strings.HasPrefix(agent.prompt, "Please analyze this code"))
}

func TestRun_RedactsBeforeSending(t *testing.T) {
	redactor := RedactorFunc(func(code string) (string, []SecretFinding) {
		return strings.ReplaceAll(code, "hunter2", "[REDACTED:generic-api-key]"),
			[]SecretFinding{{RuleID: "generic-api-key", Line: 1}}
	})
	agent := &promptRecorder{reply: "ok"}

	res, err := NewProcessor(redactor).Review(context.Background(), agent, `password = "hunter2"`)
	require.NoError(t, err)
	assert.NotContains(t, agent.prompt, "hunter2")
	assert.Contains(t, agent.prompt, "[REDACTED:generic-api-key]")
	assert.Equal(t, []SecretFinding{{RuleID: "generic-api-key", Line: 1}}, res.Findings)
}

func TestRun_Errors(t *testing.T) {
	_, err := NewProcessor(nil).Review(context.Background(), &promptRecorder{}, "   ")
	assert.ErrorIs(t, err, ErrEmptyCode)

	boom := errors.New("model offline")
	_, err = NewProcessor(nil).Analyze(context.Background(), &promptRecorder{err: boom}, "x")
	assert.ErrorIs(t, err, boom)
}

func TestSummarize(t *testing.T) {
	Summarize(nil)

	kept := &CodeReviewReport{TotalIssues: 5, SeverityCounts: map[string]int{"high": 5}, Issues: []CodeIssue{{Severity: "low"}}}
	Summarize(kept)
	assert.Equal(t, 5, kept.TotalIssues)
	assert.Equal(t, map[string]int{"high": 5}, kept.SeverityCounts)

	derived := &CodeReviewReport{Issues: []CodeIssue{{Severity: " Medium "}, {Severity: ""}, {Severity: "medium"}}}
	Summarize(derived)
	assert.Equal(t, 3, derived.TotalIssues)
	assert.Equal(t, map[string]int{"medium": 2, "unknown": 1}, derived.SeverityCounts)
}

func TestGitleaksRedactor_CleanCodeUnchanged(t *testing.T) {
	r, err := NewGitleaksRedactor()
	require.NoError(t, err)

	code := "func add(a, b int) int {\n\treturn a + b\n}\n"
	out, findings := r.Redact(code)
	assert.Equal(t, code, out)
	assert.Empty(t, findings)
}
