// Package agents defines the agent personas and the runtime that turns a
// prompt into an LLM answer, optionally grounded in retrieved knowledge and
// tool output.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/agentshub/internal/cache"
	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/guard"
	"github.com/agentshub/internal/knowledge"
	"github.com/agentshub/internal/llm"
	"github.com/agentshub/internal/metrics"
	"github.com/agentshub/internal/prompts"
	"github.com/agentshub/internal/retry"
)

var (
	// ErrEmptyPrompt is returned when the prompt is blank after trimming.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNoModel is returned when an agent runs without a model provider.
	ErrNoModel = errors.New("agent has no model provider")
)

// ModelProvider resolves a model by name. *aiconnectors.Pool implements it.
type ModelProvider interface {
	Model(ctx context.Context, name string) (llms.Model, error)
}

// KnowledgeBase is the retrieval backend. *knowledge.Base implements it.
type KnowledgeBase interface {
	Ingest(ctx context.Context, scope knowledge.Scope, paths ...string) (knowledge.IngestReport, error)
	Search(ctx context.Context, scope knowledge.Scope, query string, k int) ([]schema.Document, error)
}

// Tool is a function an agent runs before calling its model. The output is
// handed to the model as context.
type Tool struct {
	Name        string
	Description string
	Func        func(ctx context.Context, input string) (string, error)
}

// Request is one agent invocation.
type Request struct {
	Prompt string
	// ToolInput is passed to every tool; empty when the caller has none.
	ToolInput string
}

// ToolOutput is what one tool returned.
type ToolOutput struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Response is the agent's answer.
type Response struct {
	Text        string       `json:"text"`
	ToolOutputs []ToolOutput `json:"tool_outputs,omitempty"`
	Cached      bool         `json:"cached,omitempty"`
}

// Agent is a named persona bound to a model and optional knowledge.
type Agent struct {
	Name            string
	Instructions    string
	Knowledge       []string
	KnowledgeConfig config.KnowledgeConfig
	UserID          string
	LLM             string
	Tools           []Tool

	models   ModelProvider
	base     KnowledgeBase
	cache    cache.Cache
	cacheTTL time.Duration
	guard    guard.Screener
	metrics  *metrics.Recorder
	retry    retry.RetryConfig
	timeout  time.Duration
}

// Option configures an agent's runtime collaborators.
type Option func(*Agent)

func WithModels(p ModelProvider) Option {
	return func(a *Agent) { a.models = p }
}

func WithKnowledgeBase(b KnowledgeBase) Option {
	return func(a *Agent) { a.base = b }
}

// WithCache enables response caching for deterministic (temperature 0) agents.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Agent) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

func WithGuard(s guard.Screener) Option {
	return func(a *Agent) { a.guard = s }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Agent) { a.metrics = r }
}

func WithRetry(cfg retry.RetryConfig) Option {
	return func(a *Agent) { a.retry = cfg }
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

func (a *Agent) apply(opts []Option) *Agent {
	a.retry = retry.LLMRetryConfig()
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Scope is the agent's slice of the vector store.
func (a *Agent) Scope() knowledge.Scope {
	return knowledge.Scope{Collection: a.KnowledgeConfig.VectorStore.CollectionName, UserID: a.UserID}
}

// Init ingests the agent's knowledge files. It is safe to call repeatedly:
// unchanged files are skipped.
func (a *Agent) Init(ctx context.Context) error {
	if len(a.Knowledge) == 0 || a.base == nil {
		return nil
	}
	report, err := a.base.Ingest(ctx, a.Scope(), a.Knowledge...)
	if err != nil {
		return fmt.Errorf("ingest knowledge for %s: %w", a.Name, err)
	}
	log.Info().
		Str("agent", a.Name).
		Str("namespace", report.Namespace).
		Int("added", len(report.Added)).
		Int("skipped", len(report.Skipped)).
		Int("missing", len(report.Missing)).
		Int("chunks", report.Chunks).
		Msg("Agent knowledge ready")
	return nil
}

// Start answers a single prompt.
func (a *Agent) Start(ctx context.Context, prompt string) (string, error) {
	resp, err := a.Run(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Run executes one request: screening, retrieval, tools, then the model.
func (a *Agent) Run(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveAgentCall(a.Name, time.Since(start), err)
	}()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Response{}, ErrEmptyPrompt
	}

	if a.guard != nil {
		if _, err := a.guard.Screen(ctx, prompt); err != nil {
			a.metrics.GuardRejected()
			return Response{}, err
		}
	}

	query := prompt
	if len(a.Knowledge) > 0 && a.base != nil {
		query, err = a.withKnowledge(ctx, prompt)
		if err != nil {
			return Response{}, err
		}
	}

	if len(a.Tools) > 0 {
		resp.ToolOutputs, err = a.runTools(ctx, req.ToolInput)
		if err != nil {
			return Response{}, err
		}
		results := make([]string, len(resp.ToolOutputs))
		for i, out := range resp.ToolOutputs {
			results[i] = out.Name + ": " + out.Output
		}
		query, err = prompts.Default().Render(prompts.KeyToolResults, map[string]any{
			"results": results,
			"prompt":  query,
		})
		if err != nil {
			return Response{}, err
		}
	}

	// tool output varies between calls, so only tool-less agents are cached
	cacheable := a.cache != nil && a.KnowledgeConfig.LLM.Temperature == 0 && len(a.Tools) == 0
	key := cache.Key(a.Name, a.LLM, a.Instructions, query)
	if cacheable {
		if text, cerr := a.cache.Get(ctx, key); cerr == nil {
			a.metrics.CacheLookup(true)
			resp.Text = text
			resp.Cached = true
			return resp, nil
		}
		a.metrics.CacheLookup(false)
	}

	text, err := a.generate(ctx, query)
	if err != nil {
		return Response{}, err
	}
	resp.Text = text

	if cacheable {
		if cerr := a.cache.Set(ctx, key, text, a.cacheTTL); cerr != nil {
			log.Warn().Err(cerr).Str("agent", a.Name).Msg("Failed to cache response")
		}
	}
	return resp, nil
}

func (a *Agent) withKnowledge(ctx context.Context, prompt string) (string, error) {
	docs, err := a.base.Search(ctx, a.Scope(), prompt, a.KnowledgeConfig.TopK)
	if err != nil {
		return "", fmt.Errorf("%s knowledge search: %w", a.Name, err)
	}
	if len(docs) == 0 {
		return prompt, nil
	}
	chunks := make([]string, len(docs))
	for i, d := range docs {
		chunks[i] = d.PageContent
	}
	log.Debug().Str("agent", a.Name).Int("chunks", len(chunks)).Msg("Retrieved knowledge")
	return prompts.Default().Render(prompts.KeyKnowledgeContext, map[string]any{
		"chunks": chunks,
		"prompt": prompt,
	})
}

func (a *Agent) runTools(ctx context.Context, input string) ([]ToolOutput, error) {
	outputs := make([]ToolOutput, 0, len(a.Tools))
	for _, t := range a.Tools {
		out, err := t.Func(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		log.Debug().Str("agent", a.Name).Str("tool", t.Name).Str("output", out).Msg("Tool finished")
		outputs = append(outputs, ToolOutput{Name: t.Name, Output: out})
	}
	return outputs, nil
}

func (a *Agent) generate(ctx context.Context, query string) (string, error) {
	if a.models == nil {
		return "", ErrNoModel
	}
	model, err := a.models.Model(ctx, a.LLM)
	if err != nil {
		return "", fmt.Errorf("load model %s: %w", a.LLM, err)
	}

	client := llm.NewResilientClient(model, a.LLM, a.retry, a.metrics)
	req := llm.PromptRequest(a.Name, a.Instructions, query)
	req.Timeout = a.timeout
	req.Options = []llms.CallOption{
		llms.WithTemperature(a.KnowledgeConfig.LLM.Temperature),
		llms.WithMaxTokens(a.KnowledgeConfig.LLM.MaxTokens),
	}

	result := client.Generate(ctx, req)
	if !result.Success {
		return "", fmt.Errorf("%s failed after %d attempts: %w", a.Name, result.AttemptsMade, result.Err)
	}
	return result.Text, nil
}
