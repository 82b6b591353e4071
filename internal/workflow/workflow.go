// Package workflow walks a declared graph of agent tasks. Regular tasks
// follow their first next task; decision tasks branch on a string-keyed
// condition table matched against the agent's answer.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/logging"
	"github.com/agentshub/internal/metrics"
	"github.com/agentshub/internal/prompts"
)

var (
	ErrNoStartTask = errors.New("workflow has no start task")
	ErrUnknownTask = errors.New("unknown task")
	ErrMaxVisits   = errors.New("task visit limit reached")
)

// DefaultMaxVisits applies when Workflow.MaxVisits is unset.
const DefaultMaxVisits = 3

type TaskType string

const (
	TaskTypeTask     TaskType = "task"
	TaskTypeDecision TaskType = "decision"
)

// Runner executes one task's request. *agents.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req agents.Request) (agents.Response, error)
}

// Task is one node of the graph.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          Runner
	IsStart        bool
	NextTasks      []string
	Type           TaskType
	// Condition maps a decision keyword to its next tasks. An empty list ends the run.
	Condition map[string][]string
}

func (t *Task) isDecision() bool {
	return t.Type == TaskTypeDecision
}

// TaskOutput is the latest result of a task.
type TaskOutput struct {
	Task        string              `json:"task"`
	Raw         string              `json:"raw"`
	ToolOutputs []agents.ToolOutput `json:"tool_outputs,omitempty"`
	Decision    string              `json:"decision,omitempty"`
	Visit       int                 `json:"visit"`
	Duration    time.Duration       `json:"duration"`
}

// Result collects task outputs in execution order.
type Result struct {
	TaskResults map[string]TaskOutput `json:"task_results"`
	Order       []string              `json:"order"`
}

// Workflow is a task graph with a per-task visit limit.
type Workflow struct {
	Tasks     []*Task
	MaxVisits int
	Metrics   *metrics.Recorder
}

// Validate checks the graph: unique names, exactly one start task, and every
// transition target defined.
func (w *Workflow) Validate() error {
	byName := make(map[string]*Task, len(w.Tasks))
	starts := 0
	for _, t := range w.Tasks {
		if t.Name == "" {
			return errors.New("task without a name")
		}
		if _, dup := byName[t.Name]; dup {
			return fmt.Errorf("duplicate task %q", t.Name)
		}
		if t.Agent == nil {
			return fmt.Errorf("task %q has no agent", t.Name)
		}
		if t.isDecision() && len(t.Condition) == 0 {
			return fmt.Errorf("decision task %q has no conditions", t.Name)
		}
		byName[t.Name] = t
		if t.IsStart {
			starts++
		}
	}
	switch {
	case starts == 0:
		return ErrNoStartTask
	case starts > 1:
		return fmt.Errorf("workflow has %d start tasks, want 1", starts)
	}

	for _, t := range w.Tasks {
		targets := append([]string{}, t.NextTasks...)
		for _, next := range t.Condition {
			targets = append(targets, next...)
		}
		for _, target := range targets {
			if target == "" {
				continue
			}
			if _, ok := byName[target]; !ok {
				return fmt.Errorf("%w: %q referenced by %q", ErrUnknownTask, target, t.Name)
			}
		}
	}
	return nil
}

func (w *Workflow) task(name string) *Task {
	for _, t := range w.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (w *Workflow) start() *Task {
	for _, t := range w.Tasks {
		if t.IsStart {
			return t
		}
	}
	return nil
}

// Run executes the graph from the start task. input is handed to the start
// task; every later task receives the previous task's output. On error the
// outputs gathered so far are still returned.
func (w *Workflow) Run(ctx context.Context, input string) (Result, error) {
	result := Result{TaskResults: map[string]TaskOutput{}}
	if err := w.Validate(); err != nil {
		return result, err
	}

	maxVisits := w.MaxVisits
	if maxVisits <= 0 {
		maxVisits = DefaultMaxVisits
	}
	visits := map[string]int{}
	logger := logging.GetCurrentLogger()

	current := w.start()
	prevText, prevTool := input, input
	for current != nil {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if visits[current.Name] >= maxVisits {
			log.Info().Str("task", current.Name).Int("max_visits", maxVisits).Msg("Workflow visit limit reached")
			return result, fmt.Errorf("%w: %s visited %d times", ErrMaxVisits, current.Name, maxVisits)
		}
		visits[current.Name]++

		logger.LogSection("TASK " + current.Name)
		prompt, err := prompts.Default().Render(prompts.KeyWorkflowTask, map[string]any{
			"description":     current.Description,
			"expected_output": current.ExpectedOutput,
			"input":           prevText,
		})
		if err != nil {
			return result, err
		}

		started := time.Now()
		resp, err := current.Agent.Run(ctx, agents.Request{Prompt: prompt, ToolInput: prevTool})
		if err != nil {
			logger.LogError(current.Name, err)
			return result, fmt.Errorf("task %s: %w", current.Name, err)
		}
		w.Metrics.WorkflowStep(current.Name)

		out := TaskOutput{
			Task:        current.Name,
			Raw:         resp.Text,
			ToolOutputs: resp.ToolOutputs,
			Visit:       visits[current.Name],
			Duration:    time.Since(started),
		}

		var next []string
		if current.isDecision() {
			out.Decision = chooseBranch(current.Condition, resp)
			next = current.Condition[out.Decision]
		} else if len(current.NextTasks) > 0 {
			next = current.NextTasks[:1]
		}

		result.TaskResults[current.Name] = out
		result.Order = append(result.Order, current.Name)
		log.Debug().
			Str("task", current.Name).
			Int("visit", out.Visit).
			Str("decision", out.Decision).
			Strs("next", next).
			Msg("Workflow task finished")

		prevText = resp.Text
		prevTool = resp.Text
		if len(resp.ToolOutputs) > 0 {
			prevTool = resp.ToolOutputs[0].Output
		}

		current = nil
		if len(next) > 0 && next[0] != "" {
			current = w.task(next[0])
		}
	}
	return result, nil
}

// chooseBranch picks the condition key named in the tool output, then in
// the answer text. Longer keys win; matching ignores case. With no match the
// first key in sorted order is used.
func chooseBranch(condition map[string][]string, resp agents.Response) string {
	keys := make([]string, 0, len(condition))
	for k := range condition {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	sources := make([]string, 0, 2)
	if len(resp.ToolOutputs) > 0 {
		tools := make([]string, len(resp.ToolOutputs))
		for i, o := range resp.ToolOutputs {
			tools[i] = o.Output
		}
		sources = append(sources, strings.Join(tools, "\n"))
	}
	sources = append(sources, resp.Text)

	for _, src := range sources {
		lower := strings.ToLower(src)
		for _, k := range keys {
			if strings.Contains(lower, strings.ToLower(k)) {
				return k
			}
		}
	}

	sort.Strings(keys)
	return keys[0]
}
