package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/workflow"
)

type fakeModels struct {
	model llms.Model
	err   error
	names []string
}

func (f *fakeModels) Model(_ context.Context, name string) (llms.Model, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

func fixedClock(unix int64) Clock {
	return func() time.Time { return time.Unix(unix, 0) }
}

func testConfig() config.KnowledgeConfig {
	return config.KnowledgeConfig{
		VectorStore: config.VectorStoreConfig{CollectionName: "praison"},
		LLM:         config.LLMConfig{Temperature: 0, MaxTokens: 1000},
	}
}

func TestAssessAndEvaluateFollowClock(t *testing.T) {
	for unix, want := range map[int64][2]string{
		0: {"beginner", "low"},
		1: {"intermediate", "medium"},
		2: {"advanced", "high"},
		5: {"advanced", "high"},
	} {
		tools := NewTools(fixedClock(unix))
		assert.Equal(t, want[0], tools.AssessStudentLevel(), unix)
		assert.Equal(t, want[1], tools.EvaluatePerformance(), unix)
	}
}

func TestGenerateContent(t *testing.T) {
	assert.Equal(t, map[string]string{"content": "basic concepts and examples"}, GenerateContent("beginner"))
	assert.Equal(t, map[string]string{"content": "practice problems and applications"}, GenerateContent("intermediate"))
	assert.Equal(t, map[string]string{"content": "complex scenarios and projects"}, GenerateContent("advanced"))
	assert.Equal(t, map[string]string{"content": "basic concepts"}, GenerateContent("expert"))
	assert.Equal(t, map[string]string{"content": "basic concepts"}, GenerateContent(""))
}

func TestAdaptDifficulty(t *testing.T) {
	assert.Equal(t, "decrease", AdaptDifficulty("low"))
	assert.Equal(t, "maintain", AdaptDifficulty("medium"))
	assert.Equal(t, "increase", AdaptDifficulty("high"))
	assert.Equal(t, "maintain", AdaptDifficulty("unknown"))
}

func TestFindKeyword(t *testing.T) {
	assert.Equal(t, "advanced", findKeyword("The student is ADVANCED.", levels))
	assert.Equal(t, "low", findKeyword("performance: low", scores))
	assert.Equal(t, "mediocre", findKeyword(" Mediocre ", scores))
	assert.Equal(t, "follow up", findKeyword("follow up", scores))
}

func TestToolsParseUpstreamOutput(t *testing.T) {
	tools := NewTools(fixedClock(0))
	out, err := tools.generateTool().Func(context.Background(), "intermediate")
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"practice problems and applications"}`, out)

	out, err = tools.adaptTool().Func(context.Background(), "high")
	require.NoError(t, err)
	assert.Equal(t, "increase", out)
}

func TestNewAdaptiveLearningWorkflow_Graph(t *testing.T) {
	wf, err := NewAdaptiveLearningWorkflow(testConfig(), 3, nil)
	require.NoError(t, err)
	require.Len(t, wf.Tasks, 4)

	names := make([]string, len(wf.Tasks))
	for i, task := range wf.Tasks {
		names[i] = task.Name
		a, ok := task.Agent.(*agents.Agent)
		require.True(t, ok)
		assert.Equal(t, "mistral:latest", a.LLM)
		require.Len(t, a.Tools, 1)
	}
	assert.Equal(t, []string{"assess_level", "generate_content", "evaluate_performance", "adapt_difficulty"}, names)
	assert.True(t, wf.Tasks[0].IsStart)

	decision := wf.Tasks[3]
	assert.Equal(t, workflow.TaskTypeDecision, decision.Type)
	assert.Equal(t, map[string][]string{
		"decrease": {"generate_content"},
		"maintain": {},
		"increase": {"generate_content"},
	}, decision.Condition)
}

func TestProcessLearning_MaintainEndsAfterOnePass(t *testing.T) {
	models := &fakeModels{model: fake.NewFakeLLM([]string{"level noted", "lesson plan", "scored", "keep going"})}
	wf, err := NewAdaptiveLearningWorkflow(testConfig(), 3, fixedClock(1), agents.WithModels(models))
	require.NoError(t, err)

	res := ProcessLearning(context.Background(), wf, "student123", "Python Programming")
	assert.Empty(t, res.Error)
	assert.Equal(t, "student123", res.StudentID)
	assert.Equal(t, "Python Programming", res.Topic)
	assert.Equal(t, "level noted", res.Assessment)
	assert.Equal(t, "lesson plan", res.Content)
	assert.Equal(t, "scored", res.Performance)
	assert.Equal(t, "keep going", res.Adaptation)
	assert.Equal(t, "maintain", res.Decision)
	assert.Equal(t, []string{"assess_level", "generate_content", "evaluate_performance", "adapt_difficulty"}, res.Steps)
	assert.False(t, res.Timestamp.IsZero())
	assert.Len(t, models.names, 4)
}

func TestProcessLearning_IncreaseLoopsToVisitLimit(t *testing.T) {
	models := &fakeModels{model: fake.NewFakeLLM([]string{"ok"})}
	wf, err := NewAdaptiveLearningWorkflow(testConfig(), 2, fixedClock(2), agents.WithModels(models))
	require.NoError(t, err)

	res := ProcessLearning(context.Background(), wf, "s", "Go")
	assert.Empty(t, res.Error)
	assert.Equal(t, "increase", res.Decision)
	assert.Equal(t, []string{
		"assess_level",
		"generate_content", "evaluate_performance", "adapt_difficulty",
		"generate_content", "evaluate_performance", "adapt_difficulty",
	}, res.Steps)
}

func TestProcessLearning_ErrorKeepsIdentity(t *testing.T) {
	models := &fakeModels{err: errors.New("ollama not running")}
	wf, err := NewAdaptiveLearningWorkflow(testConfig(), 3, fixedClock(1), agents.WithModels(models))
	require.NoError(t, err)

	res := ProcessLearning(context.Background(), wf, "s1", "Math")
	assert.Contains(t, res.Error, "ollama not running")
	assert.Equal(t, "s1", res.StudentID)
	assert.Equal(t, "Math", res.Topic)
	assert.Empty(t, res.Steps)
}

func TestStudentProfile_AverageScore(t *testing.T) {
	assert.Zero(t, StudentProfile{}.AverageScore())
	p := StudentProfile{PerformanceHistory: []PerformanceMetric{{Score: 60}, {Score: 90}}}
	assert.InDelta(t, 75.0, p.AverageScore(), 1e-9)
}
