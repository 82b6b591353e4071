package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ChatPromptIsExact(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	out, err := m.Render(KeyChat, map[string]any{
		"context": "user: hi\nassistant: hello",
		"message": "how are you?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Previous context:\nuser: hi\nassistant: hello\n\nUser message: how are you?\n\nPlease provide a helpful and contextually appropriate response.", out)
}

func TestRender_CodePrompts(t *testing.T) {
	code := "def f():\n    return 1"

	analysis := MustRender(KeyCodeAnalysis, map[string]any{"code": code})
	assert.Equal(t, "Please analyze this code and provide a detailed report:\n```\n"+code+"\n```", analysis)

	review := MustRender(KeyCodeReview, map[string]any{"code": code})
	assert.Contains(t, review, "Please review this code and provide detailed feedback:\n```\n"+code+"\n```\nFocus on:\n")
	assert.Contains(t, review, "1. Code quality and style")
	assert.Contains(t, review, "5. Best practices")
}

func TestRender_ListJoinAndDefault(t *testing.T) {
	out := RenderBody(`A {{VAR:items|join=", "}} B {{VAR:missing|default="none"}}`, map[string]any{
		"items": []string{"x", "y", "z"},
	})
	assert.Equal(t, "A x, y, z B none", out)

	ctx := MustRender(KeyKnowledgeContext, map[string]any{
		"chunks": []string{"one", "two"},
		"prompt": "q?",
	})
	assert.Equal(t, "Relevant knowledge:\none\n\n---\n\ntwo\n\nq?", ctx)
}

func TestRender_ValuesAreNotRescanned(t *testing.T) {
	out := RenderBody("{{VAR:a}}", map[string]any{"a": "{{VAR:b}}", "b": "leak"})
	assert.Equal(t, "{{VAR:b}}", out)
}

func TestRender_UnknownKey(t *testing.T) {
	_, err := Default().Render("nope", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestManager_Override(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	m.Override(KeyChat, "custom {{VAR:message}}")
	out, err := m.Render(KeyChat, map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "custom hi", out)
	assert.Contains(t, m.Keys(), KeyWorkflowTask)
}

func TestParsePlaceholders_OptionsParsing(t *testing.T) {
	body := "Intro {{VAR:title|default=\"(untitled)\"}} -- list {{VAR:list|join=\", \"}} -- policy {{VAR:policy|default='be kind\\nrespect'}}"
	phs := ParsePlaceholders(body)
	require.Len(t, phs, 3)

	assert.Equal(t, "title", phs[0].Name)
	assert.Equal(t, "(untitled)", phs[0].Options["default"])

	assert.Equal(t, "list", phs[1].Name)
	assert.Equal(t, ", ", phs[1].Options["join"])

	assert.Equal(t, "policy", phs[2].Name)
	assert.Equal(t, "be kind\nrespect", phs[2].Options["default"])

	assert.Equal(t, []string{"title", "list", "policy"}, Variables(body))
}
