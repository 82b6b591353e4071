package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentshub/internal/config"
)

type echoAgent struct {
	prompt string
	err    error
}

func (e *echoAgent) Start(_ context.Context, prompt string) (string, error) {
	e.prompt = prompt
	if e.err != nil {
		return "", e.err
	}
	return "hello back", nil
}

func TestFormatContext_KeepsLastThree(t *testing.T) {
	var msgs []ChatMessage
	for i := 1; i <= 5; i++ {
		typ := MessageUser
		if i%2 == 0 {
			typ = MessageAssistant
		}
		msgs = append(msgs, NewMessage(typ, fmt.Sprintf("m%d", i)))
	}

	assert.Equal(t, "user: m3\nassistant: m4\nuser: m5", FormatContext(msgs))
	assert.Equal(t, "user: m1", FormatContext(msgs[:1]))
	assert.Equal(t, "", FormatContext(nil))
}

func TestChatPrompt(t *testing.T) {
	s := NewSession(nil)
	s.Messages = append(s.Messages, NewMessage(MessageUser, "hi"), NewMessage(MessageAssistant, "hello"))

	assert.Equal(t,
		"Previous context:\nuser: hi\nassistant: hello\n\nUser message: how are you?\n\n"+
			"Please provide a helpful and contextually appropriate response.",
		ChatPrompt("how are you?", s))

	assert.Equal(t,
		"Previous context:\n\n\nUser message: hi\n\nPlease provide a helpful and contextually appropriate response.",
		ChatPrompt("hi", nil))
}

func TestProcessChat(t *testing.T) {
	agent := &echoAgent{}
	s := NewSession(map[string]string{MetaAgent: "General Chat"})

	reply, err := ProcessChat(context.Background(), agent, "hi", s)
	require.NoError(t, err)
	assert.Equal(t, MessageAssistant, reply.Type)
	assert.Equal(t, "hello back", reply.Content)
	assert.Equal(t, map[string]string{"session_id": s.SessionID}, reply.Context)
	assert.NotEmpty(t, reply.ID)
	assert.Empty(t, s.Messages, "session must not be modified")

	reply, err = ProcessChat(context.Background(), agent, "hi", nil)
	require.NoError(t, err)
	assert.Nil(t, reply.Context)

	boom := errors.New("offline")
	_, err = ProcessChat(context.Background(), &echoAgent{err: boom}, "hi", s)
	assert.ErrorIs(t, err, boom)
}

func TestMarkInitialized(t *testing.T) {
	s := &ChatSession{}
	assert.False(t, s.IsInitialized("Code Review"))
	assert.True(t, s.MarkInitialized("Code Review"))
	assert.False(t, s.MarkInitialized("Code Review"))
	assert.True(t, s.MarkInitialized("Knowledge Agent"))
	assert.Equal(t, []string{"Code Review", "Knowledge Agent"}, s.InitializedAgents())
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	sess, err := store.Create(ctx, map[string]string{MetaAgent: "General Chat"})
	require.NoError(t, err)

	user := NewMessage(MessageUser, "hi")
	reply := NewMessage(MessageAssistant, "hello")
	reply.Context = map[string]string{"session_id": sess.SessionID}
	require.NoError(t, store.Append(ctx, sess.SessionID, user, reply))
	require.NoError(t, store.Append(ctx, sess.SessionID, NewMessage(MessageUser, "bye")))

	got, err := store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.Equal(t, MessageAssistant, got.Messages[1].Type)
	assert.Equal(t, reply.Context, got.Messages[1].Context)
	assert.Equal(t, "bye", got.Messages[2].Content)
	assert.True(t, user.Timestamp.Equal(got.Messages[0].Timestamp))
	assert.False(t, got.LastActivity.Before(got.StartTime))

	require.NoError(t, store.SetMetadata(ctx, sess.SessionID, map[string]string{MetaInitializedAgents: "General Chat"}))
	got, err = store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "General Chat", got.Metadata[MetaAgent])
	assert.True(t, got.IsInitialized("General Chat"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].MessageCount)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Append(ctx, "missing", user), ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, sess.SessionID))
	assert.ErrorIs(t, store.Delete(ctx, sess.SessionID), ErrSessionNotFound)
	_, err = store.Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	exerciseStore(t, store)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, err := store.Create(ctx, nil)
	require.NoError(t, err)

	sess.Messages = append(sess.Messages, NewMessage(MessageUser, "local only"))
	sess.Metadata["k"] = "v"

	got, err := store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Empty(t, got.Metadata)
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewStore(context.Background(), config.SessionConfig{Store: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("AGENTSHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGENTSHUB_TEST_POSTGRES_DSN not set")
	}
	store, err := NewStore(context.Background(), config.SessionConfig{Store: "postgres", DSN: dsn})
	require.NoError(t, err)
	defer store.Close()

	// start from an empty table so List sees only this test's session
	sessions, err := store.List(context.Background())
	require.NoError(t, err)
	for _, s := range sessions {
		require.NoError(t, store.Delete(context.Background(), s.SessionID))
	}
	exerciseStore(t, store)
}

func TestNewStore_Unknown(t *testing.T) {
	_, err := NewStore(context.Background(), config.SessionConfig{Store: "mongo"})
	assert.Error(t, err)

	s, err := NewStore(context.Background(), config.SessionConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
