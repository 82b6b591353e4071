package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentshub/internal/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id    TEXT PRIMARY KEY,
		start_time    TEXT NOT NULL,
		last_activity TEXT NOT NULL,
		metadata      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		type       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		context    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_session_seq ON chat_messages (session_id, seq)`,
}

// SQLStore persists sessions in postgres or sqlite. Timestamps are stored as
// RFC 3339 text so both dialects round-trip them identically.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates the tables if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect database.Dialect) (*SQLStore, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate session store: %w", err)
		}
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func (s *SQLStore) Create(ctx context.Context, metadata map[string]string) (*ChatSession, error) {
	sess := NewSession(metadata)
	md, err := json.Marshal(sess.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO chat_sessions (session_id, start_time, last_activity, metadata) VALUES (?, ?, ?, ?)`),
		sess.SessionID, formatTime(sess.StartTime), formatTime(sess.LastActivity), string(md))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*ChatSession, error) {
	var start, last, md string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT start_time, last_activity, metadata FROM chat_sessions WHERE session_id = ?`), id).
		Scan(&start, &last, &md)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	sess := &ChatSession{SessionID: id, Messages: []ChatMessage{}, Metadata: map[string]string{}}
	if sess.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if sess.LastActivity, err = parseTime(last); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(md), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("decode session metadata: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, type, content, created_at, context FROM chat_messages WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m         ChatMessage
			typ, ts   string
			ctxColumn sql.NullString
		)
		if err := rows.Scan(&m.ID, &typ, &m.Content, &ts, &ctxColumn); err != nil {
			return nil, err
		}
		m.Type = MessageType(typ)
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if ctxColumn.Valid && ctxColumn.String != "" {
			if err := json.Unmarshal([]byte(ctxColumn.String), &m.Context); err != nil {
				return nil, fmt.Errorf("decode message context: %w", err)
			}
		}
		sess.Messages = append(sess.Messages, m)
	}
	return sess, rows.Err()
}

func (s *SQLStore) Append(ctx context.Context, id string, msgs ...ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		s.q(`UPDATE chat_sessions SET last_activity = ? WHERE session_id = ?`), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		s.q(`SELECT COALESCE(MAX(seq), 0) FROM chat_messages WHERE session_id = ?`), id).Scan(&seq); err != nil {
		return fmt.Errorf("next message seq: %w", err)
	}

	for _, m := range msgs {
		seq++
		var msgCtx sql.NullString
		if len(m.Context) > 0 {
			raw, err := json.Marshal(m.Context)
			if err != nil {
				return err
			}
			msgCtx = sql.NullString{String: string(raw), Valid: true}
		}
		if m.ID == "" {
			m.ID = NewMessage(m.Type, "").ID
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		_, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO chat_messages (id, session_id, seq, type, content, created_at, context) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			m.ID, id, seq, string(m.Type), m.Content, formatTime(m.Timestamp), msgCtx)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) SetMetadata(ctx context.Context, id string, md map[string]string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for k, v := range md {
		sess.Metadata[k] = v
	}
	raw, err := json.Marshal(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE chat_sessions SET metadata = ? WHERE session_id = ?`), string(raw), id)
	return err
}

func (s *SQLStore) List(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.start_time, s.last_activity, COUNT(m.id)
		FROM chat_sessions s
		LEFT JOIN chat_messages m ON m.session_id = s.session_id
		GROUP BY s.session_id, s.start_time, s.last_activity
		ORDER BY s.last_activity DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var start, last string
		if err := rows.Scan(&info.SessionID, &start, &last, &info.MessageCount); err != nil {
			return nil, err
		}
		if info.StartTime, err = parseTime(start); err != nil {
			return nil, err
		}
		if info.LastActivity, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// sqlite does not enforce ON DELETE CASCADE unless foreign keys are enabled
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_messages WHERE session_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_sessions WHERE session_id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
