package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/schema"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/aiconnectors"
	"github.com/agentshub/internal/chat"
	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/knowledge"
	"github.com/agentshub/internal/learning"
	"github.com/agentshub/internal/review"
	"github.com/agentshub/internal/workflow"
)

type stubModels struct {
	model llms.Model
	err   error
}

func (s stubModels) Model(context.Context, string) (llms.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.model, nil
}

type stubBase struct {
	ingestErr error
	paths     []string
}

func (b *stubBase) Ingest(_ context.Context, scope knowledge.Scope, paths ...string) (knowledge.IngestReport, error) {
	if b.ingestErr != nil {
		return knowledge.IngestReport{}, b.ingestErr
	}
	b.paths = append(b.paths, paths...)
	return knowledge.IngestReport{Namespace: scope.Namespace(), Added: paths}, nil
}

func (b *stubBase) Search(context.Context, knowledge.Scope, string, int) ([]schema.Document, error) {
	return nil, nil
}

type stubQueue struct {
	scope knowledge.Scope
	paths []string
}

func (q *stubQueue) QueueIngestJob(_ context.Context, scope knowledge.Scope, paths []string) (int64, error) {
	q.scope = scope
	q.paths = paths
	return 42, nil
}

type fixture struct {
	server *Server
	hub    *Hub
	store  *chat.MemoryStore
	docs   string
}

func testKnowledgeConfig(t *testing.T) config.KnowledgeConfig {
	return config.KnowledgeConfig{
		VectorStore: config.VectorStoreConfig{Provider: "memory", CollectionName: "praison"},
		LLM:         config.LLMConfig{Provider: "ollama", Temperature: 0, MaxTokens: 1000},
		DocsDir:     t.TempDir(),
		TopK:        4,
	}
}

func newFixture(t *testing.T, models agents.ModelProvider, mutate func(*HubOptions)) *fixture {
	t.Helper()
	cfg := testKnowledgeConfig(t)
	store := chat.NewMemoryStore()
	opts := HubOptions{
		Catalog:  agents.NewCatalog(cfg, agents.WithModels(models)),
		Sessions: store,
		Reviewer: review.NewProcessor(nil),
		Learning: func() (*workflow.Workflow, error) {
			return learning.NewAdaptiveLearningWorkflow(cfg, 3, func() time.Time { return time.Unix(1, 0) }, agents.WithModels(models))
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	hub := NewHub(opts)
	server, err := NewServer(context.Background(), hub, ServerOptions{JWTSecret: "test-secret", DocsDir: cfg.DocsDir})
	require.NoError(t, err)
	docs, err := filepath.EvalSymlinks(cfg.DocsDir)
	require.NoError(t, err)
	return &fixture{server: server, hub: hub, store: store, docs: docs}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createSession(t *testing.T) sessionResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	return resp
}

func (f *fixture) messages(t *testing.T, s sessionResponse) []chat.ChatMessage {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/v1/sessions/"+s.SessionID+"/messages", s.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msgs []chat.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	return msgs
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	if msg, ok := body["error"].(string); ok {
		return msg
	}
	msg, _ := body["message"].(string)
	return msg
}

func TestListAgents(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/agents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Agents  []string `json:"agents"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, agents.Labels, body.Agents)
	assert.Equal(t, "General Chat", body.Default)
}

func TestCreateSession_DefaultAgentAndCookie(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	s := f.createSession(t)

	sess, err := f.store.Get(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, agents.DefaultLabel, sess.Metadata[chat.MetaAgent])
	assert.Empty(t, sess.Messages)

	// the cookie alone authenticates the session routes
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+s.SessionID, nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: s.Token})
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSessionRoutes_RequireMatchingToken(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	a := f.createSession(t)
	b := f.createSession(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions/"+a.SessionID+"/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+a.SessionID+"/messages", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+a.SessionID+"/messages", b.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChat_RecordsExchange(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"Hello there!"})}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+"/chat", s.Token,
		map[string]string{"agent": "General Chat", "message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ex Exchange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	assert.Equal(t, "hi", ex.User.Content)
	assert.Equal(t, "Hello there!", ex.Assistant.Content)
	assert.Equal(t, s.SessionID, ex.Assistant.Context["session_id"])

	msgs := f.messages(t, s)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.MessageUser, msgs[0].Type)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, chat.MessageAssistant, msgs[1].Type)
	assert.Equal(t, "Hello there!", msgs[1].Content)

	sess, err := f.store.Get(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsInitialized(agents.LabelGeneralChat))
}

func TestChat_ModelFailureBecomesAssistantMessage(t *testing.T) {
	f := newFixture(t, stubModels{err: errors.New("connection refused")}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+"/chat", s.Token,
		map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs := f.messages(t, s)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Error processing request: "), msgs[1].Content)

	var ex Exchange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	assert.True(t, ex.Failed)
	assert.Contains(t, msgs[1].Content, "connection refused")
}

func TestInitAgent_FailureNamesAgent(t *testing.T) {
	base := &stubBase{ingestErr: errors.New("chroma unreachable")}
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, func(o *HubOptions) {
		cfg := o.Catalog.Config()
		o.Catalog = agents.NewCatalog(cfg, append(o.Catalog.Options(), agents.WithKnowledgeBase(base))...)
	})
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost,
		"/api/v1/sessions/"+s.SessionID+"/agents/"+url.PathEscape("Knowledge Agent")+"/init", s.Token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := errorBody(t, rec)
	assert.True(t, strings.HasPrefix(msg, "Error initializing Knowledge Agent: "), msg)
	assert.Contains(t, msg, "chroma unreachable")

	// nothing is recorded for a failed init
	assert.Empty(t, f.messages(t, s))
}

func TestInitAgent_MarksSession(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost,
		"/api/v1/sessions/"+s.SessionID+"/agents/"+url.PathEscape("Code Review")+"/init", s.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sess, err := f.store.Get(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Code Review", sess.Metadata[chat.MetaAgent])
	assert.Equal(t, []string{"Code Review"}, sess.InitializedAgents())
}

func TestCode_RecordsFencedUserMessage(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"Looks fine."})}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+"/code", s.Token,
		map[string]string{"agent": "Code Analysis", "code": "print(1)"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs := f.messages(t, s)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Analyzing code:\n```\nprint(1)\n```", msgs[0].Content)
	assert.Equal(t, "Looks fine.", msgs[1].Content)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+"/code", s.Token,
		map[string]string{"agent": "Code Review", "code": "x = 1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs = f.messages(t, s)
	require.Len(t, msgs, 4)
	assert.Equal(t, "Reviewing code:\n```\nx = 1\n```", msgs[2].Content)
}

func TestCode_ReviewFailureUsesReviewPrefix(t *testing.T) {
	f := newFixture(t, stubModels{err: errors.New("model missing")}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+"/code", s.Token,
		map[string]string{"agent": "Code Review", "code": "x = 1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs := f.messages(t, s)
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Error reviewing code: "), msgs[1].Content)
}

func TestValidation_RejectsBadBodies(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	s := f.createSession(t)

	cases := []struct {
		name string
		path string
		body any
	}{
		{"chat without message", "/chat", map[string]string{"agent": "General Chat"}},
		{"chat with empty message", "/chat", map[string]string{"message": ""}},
		{"chat with code agent", "/chat", map[string]string{"agent": "Code Review", "message": "hi"}},
		{"code without agent", "/code", map[string]string{"code": "x"}},
		{"learning without topic", "/learning", map[string]string{"student_id": "s1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+tc.path, s.Token, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorBody(t, rec))
		})
	}
	assert.Empty(t, f.messages(t, s))
}

func TestLearning_RecordsFormattedSession(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"level noted", "lesson plan", "scored", "keep going"})}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+s.SessionID+"/learning", s.Token,
		map[string]string{"student_id": "student123", "topic": "Python Programming"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ex Exchange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	require.NotNil(t, ex.Learning)
	assert.Equal(t, "maintain", ex.Learning.Decision)

	msgs := f.messages(t, s)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Learning session:\nStudent: student123\nTopic: Python Programming", msgs[0].Content)
	assert.Contains(t, msgs[1].Content, "**Assessment**\n\nlevel noted")
	assert.Contains(t, msgs[1].Content, "Next step: **maintain** (assess_level -> generate_content -> evaluate_performance -> adapt_difficulty)")
}

func TestIngest_InlineAndQueued(t *testing.T) {
	base := &stubBase{}
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, func(o *HubOptions) {
		o.Knowledge = base
	})
	rec := f.do(t, http.MethodPost, "/api/v1/knowledge/ingest", "", map[string]any{"paths": []string{"notes.md"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{filepath.Join(f.docs, "notes.md")}, base.paths)

	var out IngestOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Queued)
	require.NotNil(t, out.Report)
	assert.Equal(t, "praison_user1", out.Report.Namespace)

	queue := &stubQueue{}
	f = newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, func(o *HubOptions) {
		o.Queue = queue
	})
	rec = f.do(t, http.MethodPost, "/api/v1/knowledge/ingest", "",
		map[string]any{"agent": "Code Review", "paths": []string{"a.md", "b.md"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Queued)
	assert.Equal(t, int64(42), out.JobID)
	assert.Equal(t, "code_reviewer", queue.scope.UserID)
	assert.Equal(t, []string{filepath.Join(f.docs, "a.md"), filepath.Join(f.docs, "b.md")}, queue.paths)
}

func TestIngest_RejectsPathsOutsideDocsDir(t *testing.T) {
	base := &stubBase{}
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, func(o *HubOptions) {
		o.Knowledge = base
	})
	outside := filepath.Join(t.TempDir(), "agentshub.toml")
	require.NoError(t, os.WriteFile(outside, []byte("api_key = \"k\""), 0o644))

	for _, paths := range [][]string{
		{"../agentshub.toml"},
		{"notes.md", "../../etc/passwd"},
		{outside},
		{"/etc/passwd"},
	} {
		rec := f.do(t, http.MethodPost, "/api/v1/knowledge/ingest", "", map[string]any{"paths": paths})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v: %s", paths, rec.Body.String())
		assert.Contains(t, errorBody(t, rec), "outside the knowledge docs directory")
	}
	assert.Nil(t, base.paths)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	s := f.createSession(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/sessions/"+s.SessionID, s.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+s.SessionID+"/messages", s.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	f.server.probes = []Probe{
		func(context.Context) aiconnectors.ProbeResult { return aiconnectors.ProbeResult{Service: "ollama", OK: true} },
		func(context.Context) aiconnectors.ProbeResult {
			return aiconnectors.ProbeResult{Service: "chroma", OK: false, Detail: "dial tcp: refused"}
		},
	}
	rec = f.do(t, http.MethodGet, "/health?deep=1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestIndexServed(t *testing.T) {
	f := newFixture(t, stubModels{model: fake.NewFakeLLM([]string{"x"})}, nil)
	rec := f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AI Agents Hub")
}

func TestTokenService(t *testing.T) {
	ts, err := NewTokenService("secret")
	require.NoError(t, err)

	token, expires, err := ts.Issue("abc")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(sessionTokenTTL), expires, time.Minute)

	id, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	other, err := NewTokenService("")
	require.NoError(t, err)
	_, err = other.Validate(token)
	assert.Error(t, err)

	ts.TTL = -time.Minute
	expired, _, err := ts.Issue("abc")
	require.NoError(t, err)
	_, err = ts.Validate(expired)
	assert.Error(t, err)
}

func TestInitErrorMessage(t *testing.T) {
	err := &InitError{Label: agents.LabelGeneralChat, Err: errors.New("boom")}
	assert.Equal(t, "Error initializing Chat Agent: boom", err.Error())
	assert.ErrorContains(t, error(&InitError{Label: "Other", Err: errors.New("x")}), "Error initializing Other: x")
}
