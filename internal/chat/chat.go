// Package chat holds conversation sessions and the general chat exchange.
package chat

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentshub/internal/prompts"
)

// ErrSessionNotFound is returned by stores for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// contextWindow is how many recent messages are replayed into a chat prompt.
const contextWindow = 3

type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// Metadata keys kept on a session.
const (
	MetaAgent             = "agent"
	MetaInitializedAgents = "initialized_agents"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Type      MessageType       `json:"type"`
	Context   map[string]string `json:"context,omitempty"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(t MessageType, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now().UTC(),
		Type:      t,
	}
}

// ChatSession is a conversation and its history.
type ChatSession struct {
	SessionID    string            `json:"session_id"`
	Messages     []ChatMessage     `json:"messages"`
	StartTime    time.Time         `json:"start_time"`
	LastActivity time.Time         `json:"last_activity"`
	Metadata     map[string]string `json:"metadata"`
}

// NewSession creates an empty session.
func NewSession(metadata map[string]string) *ChatSession {
	now := time.Now().UTC()
	md := map[string]string{}
	maps.Copy(md, metadata)
	return &ChatSession{
		SessionID:    uuid.NewString(),
		Messages:     []ChatMessage{},
		StartTime:    now,
		LastActivity: now,
		Metadata:     md,
	}
}

// InitializedAgents lists the agent labels already set up for this session.
func (s *ChatSession) InitializedAgents() []string {
	raw := s.Metadata[MetaInitializedAgents]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// IsInitialized reports whether label was set up for this session.
func (s *ChatSession) IsInitialized(label string) bool {
	return slices.Contains(s.InitializedAgents(), label)
}

// MarkInitialized records label as set up. It reports false when it already was.
func (s *ChatSession) MarkInitialized(label string) bool {
	if s.IsInitialized(label) {
		return false
	}
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
	s.Metadata[MetaInitializedAgents] = strings.Join(append(s.InitializedAgents(), label), ",")
	return true
}

// Agent answers a prompt. *agents.Agent implements it.
type Agent interface {
	Start(ctx context.Context, prompt string) (string, error)
}

// FormatContext renders the last few messages as "type: content" lines.
func FormatContext(messages []ChatMessage) string {
	recent := messages[max(0, len(messages)-contextWindow):]
	lines := make([]string, len(recent))
	for i, m := range recent {
		lines[i] = string(m.Type) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// ChatPrompt builds the prompt sent for message given the session history.
func ChatPrompt(message string, session *ChatSession) string {
	var history string
	if session != nil {
		history = FormatContext(session.Messages)
	}
	return prompts.MustRender(prompts.KeyChat, map[string]any{
		"context": history,
		"message": message,
	})
}

// ProcessChat asks the agent to reply to message. The session, when given,
// supplies recent history and is referenced in the reply's context; it is
// not modified.
func ProcessChat(ctx context.Context, agent Agent, message string, session *ChatSession) (ChatMessage, error) {
	text, err := agent.Start(ctx, ChatPrompt(message, session))
	if err != nil {
		return ChatMessage{}, err
	}

	reply := NewMessage(MessageAssistant, text)
	if session != nil && session.SessionID != "" {
		reply.Context = map[string]string{"session_id": session.SessionID}
	}
	return reply, nil
}
