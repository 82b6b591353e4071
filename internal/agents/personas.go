package agents

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agentshub/internal/config"
)

// Persona keys in personas.yaml.
const (
	PersonaKnowledge    = "knowledge"
	PersonaCodeAnalysis = "code_analysis"
	PersonaCodeReview   = "code_review"
	PersonaChat         = "chat"
	PersonaAssessor     = "assessor"
	PersonaGenerator    = "generator"
	PersonaEvaluator    = "evaluator"
	PersonaAdapter      = "adapter"
)

//go:embed personas.yaml
var builtinPersonas []byte

// KnowledgeFile is a document attached to a persona, relative to docs_dir.
type KnowledgeFile struct {
	File     string `yaml:"file"`
	Optional bool   `yaml:"optional"`
}

// Persona is the static description of an agent.
type Persona struct {
	Name         string          `yaml:"name"`
	UserID       string          `yaml:"user_id"`
	LLM          string          `yaml:"llm"`
	Instructions string          `yaml:"instructions"`
	Knowledge    []KnowledgeFile `yaml:"knowledge"`
}

var (
	personasOnce sync.Once
	personas     map[string]Persona
	personasErr  error
)

// Personas returns the embedded persona catalog keyed by persona key.
func Personas() (map[string]Persona, error) {
	personasOnce.Do(func() {
		personas = map[string]Persona{}
		if err := yaml.Unmarshal(builtinPersonas, &personas); err != nil {
			personasErr = fmt.Errorf("parse personas: %w", err)
		}
	})
	return personas, personasErr
}

// PersonaKeys lists the persona keys in sorted order.
func PersonaKeys() []string {
	all, _ := Personas()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromPersona builds the agent described by the persona key.
func FromPersona(key string, cfg config.KnowledgeConfig, opts ...Option) (*Agent, error) {
	all, err := Personas()
	if err != nil {
		return nil, err
	}
	p, ok := all[key]
	if !ok {
		return nil, fmt.Errorf("unknown persona %q", key)
	}

	a := &Agent{
		Name:            p.Name,
		Instructions:    p.Instructions,
		Knowledge:       resolveKnowledge(cfg.DocsDir, p.Knowledge),
		KnowledgeConfig: cfg,
		UserID:          p.UserID,
		LLM:             p.LLM,
	}
	return a.apply(opts), nil
}

func resolveKnowledge(docsDir string, files []KnowledgeFile) []string {
	out := []string{}
	for _, f := range files {
		path := filepath.Join(docsDir, f.File)
		if f.Optional {
			if _, err := os.Stat(path); err != nil {
				continue
			}
		}
		out = append(out, path)
	}
	return out
}

func mustPersona(key string, cfg config.KnowledgeConfig, opts []Option) *Agent {
	a, err := FromPersona(key, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// NewKnowledgeAgent answers questions from the vision-language retrieval paper.
func NewKnowledgeAgent(cfg config.KnowledgeConfig, opts ...Option) *Agent {
	return mustPersona(PersonaKnowledge, cfg, opts)
}

// NewCodeAnalysisAgent scores code quality, maintainability and security.
func NewCodeAnalysisAgent(cfg config.KnowledgeConfig, opts ...Option) *Agent {
	return mustPersona(PersonaCodeAnalysis, cfg, opts)
}

// NewCodeReviewAgent reviews code for issues and suggested fixes.
func NewCodeReviewAgent(cfg config.KnowledgeConfig, opts ...Option) *Agent {
	return mustPersona(PersonaCodeReview, cfg, opts)
}

// NewChatAgent is the general-purpose conversational agent.
func NewChatAgent(cfg config.KnowledgeConfig, opts ...Option) *Agent {
	return mustPersona(PersonaChat, cfg, opts)
}
