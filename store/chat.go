package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Chats struct {
	pool *pgxpool.Pool
}

func NewChats(pool *pgxpool.Pool) *Chats {
	return &Chats{pool: pool}
}

func (c *Chats) CreateSession(ctx context.Context, ownerID int64, title string) (ChatSession, error) {
	if title == "" {
		title = "New Chat"
	}
	var session ChatSession
	err := c.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (owner_id, title)
		VALUES ($1, $2)
		RETURNING id, owner_id, title, created_at, updated_at
	`, ownerID, title).Scan(&session.ID, &session.OwnerID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return ChatSession{}, fmt.Errorf("insert chat session: %w", err)
	}
	return session, nil
}

func (c *Chats) GetSession(ctx context.Context, ownerID, id int64) (ChatSession, error) {
	var session ChatSession
	err := c.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(&session.ID, &session.OwnerID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatSession{}, ErrNotFound
		}
		return ChatSession{}, fmt.Errorf("query chat session: %w", err)
	}
	return session, nil
}

func (c *Chats) ListSessions(ctx context.Context, ownerID int64) ([]ChatSession, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_sessions WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]ChatSession, 0)
	for rows.Next() {
		var s ChatSession
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AddMessage appends a message to a session and bumps the session's
// updated_at so listings sort by recency.
func (c *Chats) AddMessage(ctx context.Context, sessionID int64, role, content string, sources []byte) (ChatMessage, error) {
	var msg ChatMessage
	err := c.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content, sources)
		VALUES ($1, $2, $3, $4)
		RETURNING id, session_id, role, content, COALESCE(sources, 'null'::jsonb), created_at
	`, sessionID, role, content, sources).Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Sources, &msg.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	if _, err := c.pool.Exec(ctx,
		"UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1", sessionID); err != nil {
		return ChatMessage{}, fmt.Errorf("touch chat session: %w", err)
	}
	return msg, nil
}

func (c *Chats) ListMessages(ctx context.Context, sessionID int64) ([]ChatMessage, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, session_id, role, content, COALESCE(sources, 'null'::jsonb), created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Sources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
