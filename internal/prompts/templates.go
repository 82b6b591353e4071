package prompts

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Template keys
const (
	KeyChat             = "chat"
	KeyCodeAnalysis     = "code_analysis"
	KeyCodeReview       = "code_review"
	KeyKnowledgeContext = "knowledge_context"
	KeyToolResults      = "tool_results"
	KeyWorkflowTask     = "workflow_task"
)

//go:embed templates.yaml
var builtinTemplates []byte

// PlaintextTemplate is a single named template body.
type PlaintextTemplate struct {
	PromptKey string
	Body      string
}

// PlaintextTemplates returns the built-in templates sorted by key.
func PlaintextTemplates() ([]PlaintextTemplate, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(builtinTemplates, &raw); err != nil {
		return nil, fmt.Errorf("prompts: parse built-in templates: %w", err)
	}
	out := make([]PlaintextTemplate, 0, len(raw))
	for k, v := range raw {
		out = append(out, PlaintextTemplate{PromptKey: k, Body: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PromptKey < out[j].PromptKey })
	return out, nil
}
