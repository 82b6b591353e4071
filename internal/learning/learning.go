// Package learning runs the adaptive learning session: four tool-backed
// sub-agents arranged as assess, generate, evaluate and adapt, with the
// adaptation step looping back to content generation.
package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/workflow"
)

// Task names.
const (
	TaskAssessLevel         = "assess_level"
	TaskGenerateContent     = "generate_content"
	TaskEvaluatePerformance = "evaluate_performance"
	TaskAdaptDifficulty     = "adapt_difficulty"
)

// NewAdaptiveLearningWorkflow declares the adaptive learning task graph.
func NewAdaptiveLearningWorkflow(cfg config.KnowledgeConfig, maxVisits int, clock Clock, opts ...agents.Option) (*workflow.Workflow, error) {
	tools := NewTools(clock)

	build := func(key string, tool agents.Tool) (*agents.Agent, error) {
		a, err := agents.FromPersona(key, cfg, opts...)
		if err != nil {
			return nil, err
		}
		a.Tools = []agents.Tool{tool}
		return a, nil
	}

	assessor, err := build(agents.PersonaAssessor, tools.assessTool())
	if err != nil {
		return nil, err
	}
	generator, err := build(agents.PersonaGenerator, tools.generateTool())
	if err != nil {
		return nil, err
	}
	evaluator, err := build(agents.PersonaEvaluator, tools.evaluateTool())
	if err != nil {
		return nil, err
	}
	adapter, err := build(agents.PersonaAdapter, tools.adaptTool())
	if err != nil {
		return nil, err
	}

	wf := &workflow.Workflow{
		MaxVisits: maxVisits,
		Tasks: []*workflow.Task{
			{
				Name:           TaskAssessLevel,
				Description:    "Assess student's current level",
				ExpectedOutput: "Student's proficiency level",
				Agent:          assessor,
				IsStart:        true,
				NextTasks:      []string{TaskGenerateContent},
			},
			{
				Name:           TaskGenerateContent,
				Description:    "Generate appropriate content",
				ExpectedOutput: "Learning content",
				Agent:          generator,
				NextTasks:      []string{TaskEvaluatePerformance},
			},
			{
				Name:           TaskEvaluatePerformance,
				Description:    "Evaluate student's performance",
				ExpectedOutput: "Performance assessment",
				Agent:          evaluator,
				NextTasks:      []string{TaskAdaptDifficulty},
			},
			{
				Name:           TaskAdaptDifficulty,
				Description:    "Adapt content difficulty",
				ExpectedOutput: "Difficulty adjustment",
				Agent:          adapter,
				Type:           workflow.TaskTypeDecision,
				Condition: map[string][]string{
					"decrease": {TaskGenerateContent},
					"maintain": {},
					"increase": {TaskGenerateContent},
				},
			},
		},
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("adaptive learning workflow: %w", err)
	}
	return wf, nil
}

// SessionResult is the outcome of one learning session. Task fields hold the
// latest raw output of each task and are empty when the task never ran.
type SessionResult struct {
	StudentID   string    `json:"student_id"`
	Topic       string    `json:"topic"`
	Timestamp   time.Time `json:"timestamp"`
	Assessment  string    `json:"assessment,omitempty"`
	Content     string    `json:"content,omitempty"`
	Performance string    `json:"performance,omitempty"`
	Adaptation  string    `json:"adaptation,omitempty"`
	Decision    string    `json:"decision,omitempty"`
	Steps       []string  `json:"steps,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ProcessLearning runs one session. Workflow failures are reported in
// Error alongside whatever the completed tasks produced; reaching the visit
// limit is a normal end.
func ProcessLearning(ctx context.Context, wf *workflow.Workflow, studentID, topic string) SessionResult {
	result := SessionResult{
		StudentID: studentID,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	}

	input := fmt.Sprintf("Student: %s\nTopic: %s", studentID, topic)
	res, err := wf.Run(ctx, input)

	for name, out := range res.TaskResults {
		switch name {
		case TaskAssessLevel:
			result.Assessment = out.Raw
		case TaskGenerateContent:
			result.Content = out.Raw
		case TaskEvaluatePerformance:
			result.Performance = out.Raw
		case TaskAdaptDifficulty:
			result.Adaptation = out.Raw
			result.Decision = out.Decision
		}
	}
	result.Steps = res.Order

	if err != nil && !errors.Is(err, workflow.ErrMaxVisits) {
		log.Error().Err(err).Str("student_id", studentID).Str("topic", topic).Msg("Learning session failed")
		result.Error = err.Error()
		return result
	}

	log.Info().
		Str("student_id", studentID).
		Str("topic", topic).
		Int("steps", len(res.Order)).
		Str("decision", result.Decision).
		Msg("Learning session completed")
	return result
}
