// Package review runs code through the review and analysis agents. Secrets
// are redacted before the code reaches a model, and the free-form answer is
// parsed into a structured report when it carries JSON.
package review

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentshub/internal/llm"
	"github.com/agentshub/internal/prompts"
)

// ErrEmptyCode is returned when there is no code to send.
var ErrEmptyCode = errors.New("no code provided")

// Agent answers a prompt. *agents.Agent implements it.
type Agent interface {
	Start(ctx context.Context, prompt string) (string, error)
}

// Result carries the raw answer shown to the user plus whatever structure
// could be recovered from it.
type Result struct {
	Raw      string              `json:"raw"`
	Review   *CodeReviewReport   `json:"review,omitempty"`
	Analysis *CodeAnalysisReport `json:"analysis,omitempty"`
	Findings []SecretFinding     `json:"secret_findings,omitempty"`
}

// ReviewPrompt is the request sent to the code review agent.
func ReviewPrompt(code string) string {
	return prompts.MustRender(prompts.KeyCodeReview, map[string]any{"code": code})
}

// AnalysisPrompt is the request sent to the code analysis agent.
func AnalysisPrompt(code string) string {
	return prompts.MustRender(prompts.KeyCodeAnalysis, map[string]any{"code": code})
}

// Processor runs reviews and analyses with an optional redactor.
type Processor struct {
	redactor Redactor
}

// NewProcessor creates a processor. A nil redactor sends code unchanged.
func NewProcessor(r Redactor) *Processor {
	return &Processor{redactor: r}
}

var (
	defaultOnce      sync.Once
	defaultProcessor *Processor
)

// Default returns a processor backed by gitleaks. When the rule set cannot
// be loaded, code is sent unredacted and a warning is logged.
func Default() *Processor {
	defaultOnce.Do(func() {
		r, err := NewGitleaksRedactor()
		if err != nil {
			log.Warn().Err(err).Msg("Secret redaction disabled")
			defaultProcessor = NewProcessor(nil)
			return
		}
		defaultProcessor = NewProcessor(r)
	})
	return defaultProcessor
}

// ProcessReview reviews code with the default processor.
func ProcessReview(ctx context.Context, agent Agent, code string) (Result, error) {
	return Default().Review(ctx, agent, code)
}

// ProcessAnalysis analyses code with the default processor.
func ProcessAnalysis(ctx context.Context, agent Agent, code string) (Result, error) {
	return Default().Analyze(ctx, agent, code)
}

// Review sends code to the review agent.
func (p *Processor) Review(ctx context.Context, agent Agent, code string) (Result, error) {
	result, err := p.run(ctx, agent, code, ReviewPrompt)
	if err != nil {
		return result, err
	}

	var report CodeReviewReport
	if extract(result.Raw, &report) {
		Summarize(&report)
		result.Review = &report
	}
	return result, nil
}

// Analyze sends code to the analysis agent.
func (p *Processor) Analyze(ctx context.Context, agent Agent, code string) (Result, error) {
	result, err := p.run(ctx, agent, code, AnalysisPrompt)
	if err != nil {
		return result, err
	}

	var report CodeAnalysisReport
	if extract(result.Raw, &report) {
		result.Analysis = &report
	}
	return result, nil
}

func (p *Processor) run(ctx context.Context, agent Agent, code string, prompt func(string) string) (Result, error) {
	if strings.TrimSpace(code) == "" {
		return Result{}, ErrEmptyCode
	}

	var result Result
	if p.redactor != nil {
		code, result.Findings = p.redactor.Redact(code)
		if len(result.Findings) > 0 {
			log.Warn().Int("secrets", len(result.Findings)).Msg("Redacted secrets from submitted code")
		}
	}

	raw, err := agent.Start(ctx, prompt(code))
	if err != nil {
		return result, err
	}
	result.Raw = raw
	return result, nil
}

// extract decodes a JSON report from the answer. Most answers are prose, so
// failure is expected and only logged at debug level.
func extract(raw string, target any) bool {
	if llm.ExtractJSON(raw) == "" {
		return false
	}
	if _, err := llm.ProcessLLMResponse(raw, target); err != nil {
		log.Debug().Err(err).Msg("Answer carries no structured report")
		return false
	}
	return true
}
