package agents

import (
	"errors"
	"fmt"
	"slices"

	"github.com/agentshub/internal/config"
)

// UI labels.
const (
	LabelGeneralChat      = "General Chat"
	LabelKnowledge        = "Knowledge Agent"
	LabelCodeAnalysis     = "Code Analysis"
	LabelCodeReview       = "Code Review"
	LabelAdaptiveLearning = "Adaptive Learning"

	DefaultLabel = LabelGeneralChat
)

// Labels lists every selectable agent in display order.
var Labels = []string{
	LabelGeneralChat,
	LabelKnowledge,
	LabelCodeAnalysis,
	LabelCodeReview,
	LabelAdaptiveLearning,
}

// ErrUnknownAgent is returned for labels the catalog cannot build.
var ErrUnknownAgent = errors.New("unknown agent")

// Factory builds an agent from the shared knowledge config.
type Factory func(cfg config.KnowledgeConfig, opts ...Option) *Agent

// Catalog maps UI labels to agent factories. Adaptive Learning is a workflow
// rather than a single agent and is built by the learning package.
type Catalog struct {
	cfg       config.KnowledgeConfig
	opts      []Option
	factories map[string]Factory
}

// NewCatalog creates a catalog whose agents all share cfg and opts.
func NewCatalog(cfg config.KnowledgeConfig, opts ...Option) *Catalog {
	return &Catalog{
		cfg:  cfg,
		opts: opts,
		factories: map[string]Factory{
			LabelGeneralChat:  NewChatAgent,
			LabelKnowledge:    NewKnowledgeAgent,
			LabelCodeAnalysis: NewCodeAnalysisAgent,
			LabelCodeReview:   NewCodeReviewAgent,
		},
	}
}

// Has reports whether label names a single-agent entry.
func (c *Catalog) Has(label string) bool {
	_, ok := c.factories[label]
	return ok
}

// Build creates a fresh agent for label.
func (c *Catalog) Build(label string) (*Agent, error) {
	f, ok := c.factories[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, label)
	}
	return f(c.cfg, c.opts...), nil
}

// Config returns the knowledge config shared by the catalog's agents.
func (c *Catalog) Config() config.KnowledgeConfig {
	return c.cfg
}

// Options returns the runtime options applied to every agent.
func (c *Catalog) Options() []Option {
	return c.opts
}

// IsLabel reports whether label is one of Labels.
func IsLabel(label string) bool {
	return slices.Contains(Labels, label)
}
