package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/storage"
)

// ChatStore persists conversation history. *storage.Store implements it.
type ChatStore interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	SaveMessage(ctx context.Context, sessionID, role, content string, opts ...storage.MessageOption) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]storage.Message, error)
}

type sessionChecker interface {
	GetSession(ctx context.Context, id string) (*storage.Session, error)
}

// History returns the most recent limit messages of a session, oldest
// first. Without a chat store it is rebuilt from episodic memory.
func (a *Agent) History(ctx context.Context, sessionID string, limit int) ([]storage.Message, error) {
	if a.chats != nil {
		return a.chats.GetMessages(ctx, sessionID, limit)
	}
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Lock()
	turns := sess.Episodic.Turns()
	sess.Unlock()

	msgs := make([]storage.Message, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs,
			storage.Message{SessionID: sessionID, Role: storage.RoleUser, Content: t.UserInput, Timestamp: t.Timestamp},
			storage.Message{SessionID: sessionID, Role: storage.RoleAssistant, Content: t.AgentResponse, IsTruncated: t.Truncated, Timestamp: t.Timestamp},
		)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// persistTurn saves both sides of a turn. Failures are logged; the turn
// already happened.
func (a *Agent) persistTurn(ctx context.Context, sess *memory.Session, turn memory.Turn) {
	if a.chats == nil {
		return
	}
	if err := a.chats.SaveMessage(ctx, sess.ID, storage.RoleUser, turn.UserInput, storage.At(turn.Timestamp)); err != nil {
		a.logger.Warn("failed to persist user message", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	opts := []storage.MessageOption{storage.At(turn.Timestamp)}
	if turn.Truncated {
		opts = append(opts, storage.Truncated())
	}
	if err := a.chats.SaveMessage(ctx, sess.ID, storage.RoleAssistant, turn.AgentResponse, opts...); err != nil {
		a.logger.Warn("failed to persist assistant message", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// turnsFromMessages pairs each user message with the assistant reply that
// follows it. A trailing user message without a reply is dropped.
func turnsFromMessages(msgs []storage.Message) []memory.Turn {
	var turns []memory.Turn
	for i := 0; i < len(msgs); i++ {
		if msgs[i].Role != storage.RoleUser {
			continue
		}
		if i+1 >= len(msgs) || msgs[i+1].Role != storage.RoleAssistant {
			continue
		}
		reply := msgs[i+1]
		turns = append(turns, memory.Turn{
			UserInput:     msgs[i].Content,
			AgentResponse: reply.Content,
			Timestamp:     reply.Timestamp,
			Truncated:     reply.IsTruncated,
		})
		i++
	}
	return turns
}
