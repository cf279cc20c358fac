package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Roles stored with each message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted chat message.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Tokens      int       `json:"tokens"`
	IsTruncated bool      `json:"isTruncated"` // interrupted before completion
	Timestamp   time.Time `json:"timestamp"`
}

type messageOptions struct {
	truncated bool
	tokens    int
	at        time.Time
}

// MessageOption adjusts a saved message.
type MessageOption func(*messageOptions)

// Truncated marks a message as cut short, e.g. a cancelled stream.
func Truncated() MessageOption {
	return func(o *messageOptions) { o.truncated = true }
}

// WithTokens overrides the computed token count.
func WithTokens(n int) MessageOption {
	return func(o *messageOptions) { o.tokens = n }
}

// At sets the message timestamp.
func At(t time.Time) MessageOption {
	return func(o *messageOptions) { o.at = t }
}

// SaveMessage appends a message to a session and updates its totals.
func (s *Store) SaveMessage(ctx context.Context, sessionID, role, content string, opts ...MessageOption) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("storage: unknown role %q", role)
	}
	o := messageOptions{tokens: -1, at: s.now().UTC()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokens < 0 {
		o.tokens = s.countTokens(content)
	}

	return withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET message_count = message_count + 1,
			    total_tokens = total_tokens + ?,
			    last_active = ?
			WHERE session_id = ?`, o.tokens, o.at, sessionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrSessionNotFound
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (message_id, session_id, role, content, tokens, is_truncated, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			NewID(), sessionID, role, content, o.tokens, o.truncated, o.at,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetMessages returns the most recent limit messages in chronological
// order. limit <= 0 returns everything.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `
		SELECT message_id, session_id, role, content, tokens, is_truncated, timestamp
		FROM (
			SELECT id, message_id, session_id, role, content, tokens, is_truncated, timestamp
			FROM messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Tokens, &m.IsTruncated, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
