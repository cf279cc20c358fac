package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/bus"
	"github.com/odvcencio/repcoach/pkg/memory"
)

// TurnEvent is published on the bus after every turn.
type TurnEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	UserInput  string    `json:"user_input"`
	Response   string    `json:"response"`
	Intent     string    `json:"intent"`
	ActionType string    `json:"action_type,omitempty"`
	Truncated  bool      `json:"truncated,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (a *Agent) publishTurn(ctx context.Context, sess *memory.Session, turn memory.Turn, reply *Reply) {
	if a.bus == nil {
		return
	}
	ev := TurnEvent{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		UserInput: turn.UserInput,
		Response:  turn.AgentResponse,
		Intent:    reply.Intent.Name,
		Truncated: turn.Truncated,
		Timestamp: turn.Timestamp,
	}
	if reply.Action != nil {
		ev.ActionType = string(reply.Action.Type)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		a.logger.Warn("failed to encode turn event", zap.Error(err))
		return
	}
	if err := a.bus.Publish(ctx, bus.TurnSubject(a.busPrefix, sess.ID), data); err != nil {
		a.logger.Warn("failed to publish turn event", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
