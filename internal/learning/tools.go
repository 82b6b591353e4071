package learning

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/agentshub/internal/agents"
)

var (
	levels = []string{"beginner", "intermediate", "advanced"}
	scores = []string{"low", "medium", "high"}

	contentTypes = map[string]string{
		"beginner":     "basic concepts and examples",
		"intermediate": "practice problems and applications",
		"advanced":     "complex scenarios and projects",
	}
	adaptations = map[string]string{
		"low":    "decrease",
		"medium": "maintain",
		"high":   "increase",
	}
)

const (
	defaultContent    = "basic concepts"
	defaultAdaptation = "maintain"
)

// Clock returns the current time. Tools derive their simulated readings from it.
type Clock func() time.Time

// Tools are the simulated learning tools handed to the sub-agents.
type Tools struct {
	now Clock
}

// NewTools creates the tools. A nil clock uses time.Now.
func NewTools(clock Clock) *Tools {
	if clock == nil {
		clock = time.Now
	}
	return &Tools{now: clock}
}

// AssessStudentLevel simulates an assessment from the wall clock.
func (t *Tools) AssessStudentLevel() string {
	return levels[t.now().Unix()%3]
}

// EvaluatePerformance simulates a performance reading from the wall clock.
func (t *Tools) EvaluatePerformance() string {
	return scores[t.now().Unix()%3]
}

// GenerateContent maps a level to the kind of content to produce.
func GenerateContent(level string) map[string]string {
	content, ok := contentTypes[level]
	if !ok {
		content = defaultContent
	}
	return map[string]string{"content": content}
}

// AdaptDifficulty maps a performance reading to a difficulty change.
func AdaptDifficulty(performance string) string {
	if a, ok := adaptations[performance]; ok {
		return a
	}
	return defaultAdaptation
}

// findKeyword returns the first word of text that is one of keywords, or
// text itself trimmed and lowered when none is.
func findKeyword(text string, keywords []string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if slices.Contains(keywords, w) {
			return w
		}
	}
	return strings.ToLower(strings.TrimSpace(text))
}

func (t *Tools) assessTool() agents.Tool {
	return agents.Tool{
		Name:        "assess_student_level",
		Description: "Simulates student assessment.",
		Func: func(context.Context, string) (string, error) {
			return t.AssessStudentLevel(), nil
		},
	}
}

func (t *Tools) generateTool() agents.Tool {
	return agents.Tool{
		Name:        "generate_content",
		Description: "Generates appropriate learning content based on level.",
		Func: func(_ context.Context, input string) (string, error) {
			out, err := json.Marshal(GenerateContent(findKeyword(input, levels)))
			return string(out), err
		},
	}
}

func (t *Tools) evaluateTool() agents.Tool {
	return agents.Tool{
		Name:        "evaluate_performance",
		Description: "Evaluates student performance.",
		Func: func(context.Context, string) (string, error) {
			return t.EvaluatePerformance(), nil
		},
	}
}

func (t *Tools) adaptTool() agents.Tool {
	return agents.Tool{
		Name:        "adapt_difficulty",
		Description: "Adapts content difficulty based on performance.",
		Func: func(_ context.Context, input string) (string, error) {
			return AdaptDifficulty(findKeyword(input, scores)), nil
		},
	}
}
