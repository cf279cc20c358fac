package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session is a persisted conversation header.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
	MessageCount int       `json:"messageCount"`
	TotalTokens  int       `json:"totalTokens"`
}

// NewID returns a sortable unique identifier.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// CreateSession records a new session for userID and returns its id.
func (s *Store) CreateSession(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("storage: user id is required")
	}
	id := NewID()
	now := s.now().UTC()
	err := withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (session_id, user_id, created_at, last_active) VALUES (?, ?, ?, ?)`,
			id, userID, now, now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// GetSession loads one session header.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, created_at, last_active, message_count, total_tokens
		FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.LastActive, &sess.MessageCount, &sess.TotalTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, created_at, last_active, message_count, total_tokens
		FROM sessions WHERE user_id = ?
		ORDER BY last_active DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.LastActive, &sess.MessageCount, &sess.TotalTokens); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
