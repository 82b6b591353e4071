package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/chat"
	"github.com/agentshub/internal/knowledge"
	"github.com/agentshub/internal/learning"
	"github.com/agentshub/internal/metrics"
	"github.com/agentshub/internal/review"
	"github.com/agentshub/internal/workflow"
)

// Prefixes of the assistant messages recorded when a request fails.
const (
	errPrefixChat     = "Error processing request: "
	errPrefixAnalysis = "Error analyzing code: "
	errPrefixReview   = "Error reviewing code: "
	errPrefixLearning = "Error running learning session: "
)

// initNames is how init failures name each agent.
var initNames = map[string]string{
	agents.LabelGeneralChat:      "Chat Agent",
	agents.LabelKnowledge:        "Knowledge Agent",
	agents.LabelCodeAnalysis:     "Code Analysis Agent",
	agents.LabelCodeReview:       "Code Review Agent",
	agents.LabelAdaptiveLearning: "Adaptive Learning Agent",
}

// InitError reports an agent that could not be set up.
type InitError struct {
	Label string
	Err   error
}

func (e *InitError) Error() string {
	name := initNames[e.Label]
	if name == "" {
		name = e.Label
	}
	return fmt.Sprintf("Error initializing %s: %v", name, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Ingester loads files into a knowledge namespace.
type Ingester interface {
	Ingest(ctx context.Context, scope knowledge.Scope, paths ...string) (knowledge.IngestReport, error)
}

// IngestQueue enqueues background ingestion. *jobqueue.JobQueue implements it.
type IngestQueue interface {
	QueueIngestJob(ctx context.Context, scope knowledge.Scope, paths []string) (int64, error)
}

// LearningBuilder declares the adaptive learning workflow.
type LearningBuilder func() (*workflow.Workflow, error)

// HubOptions are the collaborators a Hub dispatches to.
type HubOptions struct {
	Catalog   *agents.Catalog
	Sessions  chat.Store
	Learning  LearningBuilder
	Reviewer  *review.Processor
	Knowledge Ingester
	Queue     IngestQueue
	Metrics   *metrics.Recorder
}

// Hub routes session requests to agents. Agents are built and initialized
// once per process and shared by every session; each session still records
// which agents it has initialized.
type Hub struct {
	catalog   *agents.Catalog
	sessions  chat.Store
	learning  LearningBuilder
	reviewer  *review.Processor
	knowledge Ingester
	queue     IngestQueue
	metrics   *metrics.Recorder

	group    singleflight.Group
	mu       sync.RWMutex
	agents   map[string]*agents.Agent
	workflow *workflow.Workflow
}

func NewHub(opts HubOptions) *Hub {
	if opts.Reviewer == nil {
		opts.Reviewer = review.Default()
	}
	return &Hub{
		catalog:   opts.Catalog,
		sessions:  opts.Sessions,
		learning:  opts.Learning,
		reviewer:  opts.Reviewer,
		knowledge: opts.Knowledge,
		queue:     opts.Queue,
		metrics:   opts.Metrics,
		agents:    map[string]*agents.Agent{},
	}
}

// Sessions exposes the session store.
func (h *Hub) Sessions() chat.Store {
	return h.sessions
}

// CreateSession starts a conversation with the default agent selected.
func (h *Hub) CreateSession(ctx context.Context) (*chat.ChatSession, error) {
	sess, err := h.sessions.Create(ctx, map[string]string{chat.MetaAgent: agents.DefaultLabel})
	if err != nil {
		return nil, err
	}
	h.metrics.SessionCreated()
	return sess, nil
}

// DeleteSession removes a conversation.
func (h *Hub) DeleteSession(ctx context.Context, id string) error {
	if err := h.sessions.Delete(ctx, id); err != nil {
		return err
	}
	h.metrics.SessionDeleted()
	return nil
}

// agent returns the process-wide instance for label, building and
// initializing it on first use. Concurrent first calls share one init.
func (h *Hub) agent(ctx context.Context, label string) (*agents.Agent, error) {
	h.mu.RLock()
	a, ok := h.agents[label]
	h.mu.RUnlock()
	if ok {
		return a, nil
	}

	v, err, _ := h.group.Do(label, func() (any, error) {
		a, err := h.catalog.Build(label)
		if err != nil {
			return nil, err
		}
		if err := a.Init(ctx); err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.agents[label] = a
		h.mu.Unlock()
		log.Info().Str("label", label).Str("agent", a.Name).Msg("Agent initialized")
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*agents.Agent), nil
}

func (h *Hub) learningWorkflow() (*workflow.Workflow, error) {
	h.mu.RLock()
	wf := h.workflow
	h.mu.RUnlock()
	if wf != nil {
		return wf, nil
	}
	if h.learning == nil {
		return nil, errors.New("adaptive learning is not configured")
	}

	v, err, _ := h.group.Do(agents.LabelAdaptiveLearning, func() (any, error) {
		wf, err := h.learning()
		if err != nil {
			return nil, err
		}
		if err := wf.Validate(); err != nil {
			return nil, err
		}
		if wf.Metrics == nil {
			wf.Metrics = h.metrics
		}
		h.mu.Lock()
		h.workflow = wf
		h.mu.Unlock()
		return wf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*workflow.Workflow), nil
}

// InitAgent sets label up for the session. It is a no-op for agents the
// session already initialized.
func (h *Hub) InitAgent(ctx context.Context, sess *chat.ChatSession, label string) error {
	if !agents.IsLabel(label) {
		return fmt.Errorf("%w: %q", agents.ErrUnknownAgent, label)
	}

	var err error
	if label == agents.LabelAdaptiveLearning {
		_, err = h.learningWorkflow()
	} else {
		_, err = h.agent(ctx, label)
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.SessionID).Str("label", label).Msg("Agent init failed")
		return &InitError{Label: label, Err: err}
	}

	changed := sess.MarkInitialized(label)
	if sess.Metadata[chat.MetaAgent] != label {
		sess.Metadata[chat.MetaAgent] = label
		changed = true
	}
	if !changed {
		return nil
	}
	return h.sessions.SetMetadata(ctx, sess.SessionID, map[string]string{
		chat.MetaAgent:             label,
		chat.MetaInitializedAgents: sess.Metadata[chat.MetaInitializedAgents],
	})
}

// Exchange is the outcome of one request: the stored user and assistant
// messages plus any structured result.
type Exchange struct {
	User      chat.ChatMessage        `json:"user"`
	Assistant chat.ChatMessage        `json:"assistant"`
	Code      *review.Result          `json:"code,omitempty"`
	Learning  *learning.SessionResult `json:"learning,omitempty"`
	// Failed marks an assistant message that reports an error.
	Failed    bool                    `json:"failed,omitempty"`
}

// record appends the user message, runs fn and appends its reply. A failing
// fn becomes an assistant message starting with errPrefix.
func (h *Hub) record(ctx context.Context, sess *chat.ChatSession, userText, errPrefix string, fn func() (chat.ChatMessage, error)) (Exchange, error) {
	user := chat.NewMessage(chat.MessageUser, userText)
	if err := h.sessions.Append(ctx, sess.SessionID, user); err != nil {
		return Exchange{}, err
	}

	reply, err := fn()
	failed := err != nil
	if failed {
		log.Error().Err(err).Str("session_id", sess.SessionID).Msg("Request failed")
		reply = chat.NewMessage(chat.MessageAssistant, errPrefix+err.Error())
	}
	if err := h.sessions.Append(ctx, sess.SessionID, reply); err != nil {
		return Exchange{}, err
	}
	return Exchange{User: user, Assistant: reply, Failed: failed}, nil
}

// Chat sends message to General Chat or the Knowledge Agent.
func (h *Hub) Chat(ctx context.Context, sess *chat.ChatSession, label, message string) (Exchange, error) {
	if label != agents.LabelGeneralChat && label != agents.LabelKnowledge {
		return Exchange{}, fmt.Errorf("%w: %q does not take chat messages", agents.ErrUnknownAgent, label)
	}
	if err := h.InitAgent(ctx, sess, label); err != nil {
		return Exchange{}, err
	}
	a, err := h.agent(ctx, label)
	if err != nil {
		return Exchange{}, &InitError{Label: label, Err: err}
	}

	// sess holds the history as loaded, before this message is appended
	return h.record(ctx, sess, message, errPrefixChat, func() (chat.ChatMessage, error) {
		if label == agents.LabelGeneralChat {
			return chat.ProcessChat(ctx, a, message, sess)
		}
		text, err := a.Start(ctx, message)
		if err != nil {
			return chat.ChatMessage{}, err
		}
		return chat.NewMessage(chat.MessageAssistant, text), nil
	})
}

func codeBlock(verb, code string) string {
	return verb + " code:\n```\n" + code + "\n```"
}

// Code sends code to Code Analysis or Code Review.
func (h *Hub) Code(ctx context.Context, sess *chat.ChatSession, label, code string) (Exchange, error) {
	var (
		verb, prefix string
		run          func(context.Context, review.Agent, string) (review.Result, error)
	)
	switch label {
	case agents.LabelCodeAnalysis:
		verb, prefix, run = "Analyzing", errPrefixAnalysis, h.reviewer.Analyze
	case agents.LabelCodeReview:
		verb, prefix, run = "Reviewing", errPrefixReview, h.reviewer.Review
	default:
		return Exchange{}, fmt.Errorf("%w: %q does not take code", agents.ErrUnknownAgent, label)
	}
	if err := h.InitAgent(ctx, sess, label); err != nil {
		return Exchange{}, err
	}
	a, err := h.agent(ctx, label)
	if err != nil {
		return Exchange{}, &InitError{Label: label, Err: err}
	}

	var result *review.Result
	ex, err := h.record(ctx, sess, codeBlock(verb, code), prefix, func() (chat.ChatMessage, error) {
		res, err := run(ctx, a, code)
		if err != nil {
			return chat.ChatMessage{}, err
		}
		result = &res
		return chat.NewMessage(chat.MessageAssistant, res.Raw), nil
	})
	ex.Code = result
	return ex, err
}

// Learn runs one adaptive learning session.
func (h *Hub) Learn(ctx context.Context, sess *chat.ChatSession, studentID, topic string) (Exchange, error) {
	if err := h.InitAgent(ctx, sess, agents.LabelAdaptiveLearning); err != nil {
		return Exchange{}, err
	}
	wf, err := h.learningWorkflow()
	if err != nil {
		return Exchange{}, &InitError{Label: agents.LabelAdaptiveLearning, Err: err}
	}

	var result learning.SessionResult
	userText := fmt.Sprintf("Learning session:\nStudent: %s\nTopic: %s", studentID, topic)
	ex, err := h.record(ctx, sess, userText, errPrefixLearning, func() (chat.ChatMessage, error) {
		result = learning.ProcessLearning(ctx, wf, studentID, topic)
		if result.Error != "" {
			return chat.ChatMessage{}, errors.New(result.Error)
		}
		return chat.NewMessage(chat.MessageAssistant, FormatLearning(result)), nil
	})
	ex.Learning = &result
	return ex, err
}

// FormatLearning renders a session result as markdown.
func FormatLearning(r learning.SessionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Learning session for %s: %s\n\n", r.StudentID, r.Topic)
	for _, section := range []struct{ title, body string }{
		{"Assessment", r.Assessment},
		{"Content", r.Content},
		{"Performance", r.Performance},
		{"Adaptation", r.Adaptation},
	} {
		if section.body == "" {
			continue
		}
		fmt.Fprintf(&b, "**%s**\n\n%s\n\n", section.title, section.body)
	}
	if r.Decision != "" {
		fmt.Fprintf(&b, "Next step: **%s** (%s)\n", r.Decision, strings.Join(r.Steps, " -> "))
	}
	return strings.TrimSpace(b.String())
}

// IngestOutcome is either a queued job or an inline report.
type IngestOutcome struct {
	Queued bool                    `json:"queued"`
	JobID  int64                   `json:"job_id,omitempty"`
	Report *knowledge.IngestReport `json:"report,omitempty"`
}

// Ingest loads paths into label's knowledge namespace, defaulting to the
// Knowledge Agent. With a queue the work is handed to a worker.
func (h *Hub) Ingest(ctx context.Context, label string, paths []string) (IngestOutcome, error) {
	if label == "" {
		label = agents.LabelKnowledge
	}
	a, err := h.catalog.Build(label)
	if err != nil {
		return IngestOutcome{}, err
	}
	scope := a.Scope()

	if h.queue != nil {
		id, err := h.queue.QueueIngestJob(ctx, scope, paths)
		if err != nil {
			return IngestOutcome{}, err
		}
		return IngestOutcome{Queued: true, JobID: id}, nil
	}
	if h.knowledge == nil {
		return IngestOutcome{}, errors.New("no knowledge base configured")
	}
	report, err := h.knowledge.Ingest(ctx, scope, paths...)
	if err != nil {
		return IngestOutcome{}, err
	}
	return IngestOutcome{Report: &report}, nil
}
