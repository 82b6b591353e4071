package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentshub/internal/agents"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted answers with a fixed text and tool output, recording requests.
type scripted struct {
	text     string
	tool     string
	requests []agents.Request
	err      error
}

func (s *scripted) Run(_ context.Context, req agents.Request) (agents.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return agents.Response{}, s.err
	}
	resp := agents.Response{Text: s.text}
	if s.tool != "" {
		resp.ToolOutputs = []agents.ToolOutput{{Name: "tool", Output: s.tool}}
	}
	return resp, nil
}

func linearWorkflow(decision string) (*Workflow, map[string]*scripted) {
	runners := map[string]*scripted{
		"first":  {text: "first done", tool: "beginner"},
		"second": {text: "second done"},
		"decide": {text: "thinking it over", tool: decision},
	}
	w := &Workflow{
		MaxVisits: 3,
		Tasks: []*Task{
			{Name: "first", Description: "Do first", ExpectedOutput: "A", Agent: runners["first"], IsStart: true, NextTasks: []string{"second"}},
			{Name: "second", Description: "Do second", ExpectedOutput: "B", Agent: runners["second"], NextTasks: []string{"decide"}},
			{Name: "decide", Description: "Decide", ExpectedOutput: "C", Agent: runners["decide"], Type: TaskTypeDecision, Condition: map[string][]string{
				"decrease": {"second"},
				"maintain": {},
				"increase": {"second"},
			}},
		},
	}
	return w, runners
}

func TestRun_DecisionEnds(t *testing.T) {
	w, runners := linearWorkflow("maintain")

	res, err := w.Run(context.Background(), "start input")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"first", "second", "decide"}, res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "maintain", res.TaskResults["decide"].Decision)
	assert.Equal(t, "second done", res.TaskResults["second"].Raw)

	// the start task sees the caller input; later tasks see the previous output
	first := runners["first"].requests[0]
	assert.Equal(t, "start input", first.ToolInput)
	assert.Equal(t, "Task: Do first\nExpected output: A\n\nInput:\nstart input", first.Prompt)

	second := runners["second"].requests[0]
	assert.Equal(t, "beginner", second.ToolInput)
	assert.Contains(t, second.Prompt, "Input:\nfirst done")
}

func TestRun_LoopsUntilMaxVisits(t *testing.T) {
	w, runners := linearWorkflow("increase")

	res, err := w.Run(context.Background(), "")
	require.ErrorIs(t, err, ErrMaxVisits)

	assert.Len(t, runners["second"].requests, 3)
	assert.Len(t, runners["decide"].requests, 3)
	assert.Equal(t, 3, res.TaskResults["decide"].Visit)
	assert.Equal(t, []string{"first", "second", "decide", "second", "decide", "second", "decide"}, res.Order)
}

func TestRun_EmptyInputRendersDefault(t *testing.T) {
	w, runners := linearWorkflow("maintain")
	_, err := w.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, runners["first"].requests[0].Prompt, "Input:\n(none)")
}

func TestRun_AgentErrorKeepsPartialResults(t *testing.T) {
	w, runners := linearWorkflow("maintain")
	runners["second"].err = errors.New("model down")

	res, err := w.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task second: model down")
	assert.Equal(t, []string{"first"}, res.Order)
	assert.Contains(t, res.TaskResults, "first")
}

func TestRun_CancelledContext(t *testing.T) {
	w, runners := linearWorkflow("maintain")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Run(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runners["first"].requests)
}

func TestValidate(t *testing.T) {
	r := &scripted{}
	tests := []struct {
		name  string
		tasks []*Task
		want  error
		match string
	}{
		{"no start", []*Task{{Name: "a", Agent: r}}, ErrNoStartTask, ""},
		{"two starts", []*Task{{Name: "a", Agent: r, IsStart: true}, {Name: "b", Agent: r, IsStart: true}}, nil, "2 start tasks"},
		{"unknown next", []*Task{{Name: "a", Agent: r, IsStart: true, NextTasks: []string{"zzz"}}}, ErrUnknownTask, ""},
		{"unknown branch", []*Task{{Name: "a", Agent: r, IsStart: true, Type: TaskTypeDecision, Condition: map[string][]string{"x": {"nope"}}}}, ErrUnknownTask, ""},
		{"duplicate", []*Task{{Name: "a", Agent: r, IsStart: true}, {Name: "a", Agent: r}}, nil, "duplicate"},
		{"no agent", []*Task{{Name: "a", IsStart: true}}, nil, "no agent"},
		{"empty decision", []*Task{{Name: "a", Agent: r, IsStart: true, Type: TaskTypeDecision}}, nil, "no conditions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Workflow{Tasks: tt.tasks}).Validate()
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.match != "" {
				assert.Contains(t, err.Error(), tt.match)
			}
		})
	}

	ok := &Workflow{Tasks: []*Task{
		{Name: "a", Agent: r, IsStart: true, NextTasks: []string{"b"}},
		{Name: "b", Agent: r, Type: TaskTypeDecision, Condition: map[string][]string{"stop": {""}, "again": {"a"}}},
	}}
	assert.NoError(t, ok.Validate())
}

func TestChooseBranch(t *testing.T) {
	cond := map[string][]string{"decrease": nil, "maintain": nil, "increase": nil}

	tests := []struct {
		name string
		resp agents.Response
		want string
	}{
		{"tool output wins", agents.Response{Text: "we should decrease", ToolOutputs: []agents.ToolOutput{{Output: "increase"}}}, "increase"},
		{"text fallback", agents.Response{Text: "I recommend we MAINTAIN the level"}, "maintain"},
		{"no match", agents.Response{Text: "unclear"}, "decrease"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chooseBranch(cond, tt.resp))
		})
	}

	overlap := map[string][]string{"go": nil, "go deeper": nil}
	assert.Equal(t, "go deeper", chooseBranch(overlap, agents.Response{Text: "let's go deeper"}))
}
