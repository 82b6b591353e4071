package aiconnectors

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/agentshub/internal/config"
)

// ModelFactory builds a model for a set of connector options.
type ModelFactory func(ctx context.Context, options ConnectorOptions) (llms.Model, error)

// Pool hands out one connector per model name. Every connector shares the
// provider, endpoint and sampling settings of the knowledge LLM config; agents
// only choose the model name.
type Pool struct {
	cfg     config.LLMConfig
	factory ModelFactory

	mu         sync.Mutex
	connectors map[string]*Connector
}

// NewPool creates a pool backed by real provider clients.
func NewPool(cfg config.LLMConfig) *Pool {
	return NewPoolWithFactory(cfg, func(ctx context.Context, options ConnectorOptions) (llms.Model, error) {
		return NewConnector(ctx, options)
	})
}

// NewPoolWithFactory creates a pool with a custom model factory; tests use it
// to inject fakes.
func NewPoolWithFactory(cfg config.LLMConfig, factory ModelFactory) *Pool {
	return &Pool{cfg: cfg, factory: factory, connectors: map[string]*Connector{}}
}

// Model returns the connector for name, creating it on first use. An empty
// name selects the configured default model.
func (p *Pool) Model(ctx context.Context, name string) (llms.Model, error) {
	if name == "" {
		name = p.cfg.Model
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.connectors[name]; ok {
		return c, nil
	}

	options, err := p.options(name)
	if err != nil {
		return nil, err
	}
	model, err := p.factory(ctx, options)
	if err != nil {
		return nil, err
	}
	c, ok := model.(*Connector)
	if !ok {
		c = NewConnectorWithModel(options, model)
	}
	p.connectors[name] = c
	return c, nil
}

// Models lists the model names created so far.
func (p *Pool) Models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.connectors))
	for name := range p.connectors {
		names = append(names, name)
	}
	return names
}

func (p *Pool) options(model string) (ConnectorOptions, error) {
	provider, err := ParseProvider(p.cfg.Provider)
	if err != nil {
		return ConnectorOptions{}, err
	}
	baseURL := ""
	if provider == ProviderOllama {
		baseURL = p.cfg.OllamaBaseURL
	}
	return ConnectorOptions{
		Provider: provider,
		APIKey:   p.cfg.APIKey,
		BaseURL:  baseURL,
		ModelConfig: ModelConfig{
			Model:       model,
			Temperature: p.cfg.Temperature,
			MaxTokens:   p.cfg.MaxTokens,
		},
	}, nil
}
