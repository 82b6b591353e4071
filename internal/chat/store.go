package chat

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/agentshub/internal/config"
	"github.com/agentshub/internal/database"
)

// SessionInfo summarises a session without its messages.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Store persists chat sessions.
type Store interface {
	Create(ctx context.Context, metadata map[string]string) (*ChatSession, error)
	Get(ctx context.Context, id string) (*ChatSession, error)
	// Append adds messages in order and bumps the session's last activity.
	Append(ctx context.Context, id string, msgs ...ChatMessage) error
	// SetMetadata merges md into the session metadata.
	SetMetadata(ctx context.Context, id string, md map[string]string) error
	List(ctx context.Context) ([]SessionInfo, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewStore opens the store selected by session.store.
func NewStore(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	if cfg.Store == "" || cfg.Store == "memory" {
		return NewMemoryStore(), nil
	}
	dialect, err := database.ParseDialect(cfg.Store)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, dialect, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s session store: %w", dialect, err)
	}
	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*ChatSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*ChatSession{}}
}

func (m *MemoryStore) Create(_ context.Context, metadata map[string]string) (*ChatSession, error) {
	s := NewSession(metadata)
	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	return cloneSession(s), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Append(_ context.Context, id string, msgs ...ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Messages = append(s.Messages, msgs...)
	s.LastActivity = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SetMetadata(_ context.Context, id string, md map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	maps.Copy(s.Metadata, md)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			SessionID:    s.SessionID,
			StartTime:    s.StartTime,
			LastActivity: s.LastActivity,
			MessageCount: len(s.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneSession(s *ChatSession) *ChatSession {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}
