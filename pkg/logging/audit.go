package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/telemetry"
)

// Audit copies hub events into a Logger until ctx is done or the hub
// closes. Write failures go to zlog and do not stop the loop. A session's
// file is closed once its session.ended event is written.
func Audit(ctx context.Context, hub *telemetry.Hub, l *Logger, zlog *zap.Logger) error {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := l.Log(FromTelemetry(ev)); err != nil {
				zlog.Warn("audit log write failed", zap.String("event", string(ev.Type)), zap.Error(err))
			}
			if ev.Type == telemetry.EventSessionEnded && ev.SessionID != "" {
				if err := l.CloseSession(ev.SessionID); err != nil {
					zlog.Warn("audit session close failed", zap.String("session_id", ev.SessionID), zap.Error(err))
				}
			}
		}
	}
}

// FromTelemetry converts a hub event into an audit event.
func FromTelemetry(ev telemetry.Event) Event {
	return Event{
		Timestamp: ev.Timestamp,
		Level:     levelFor(ev.Type),
		Category:  categoryFor(ev.Type),
		EventType: string(ev.Type),
		SessionID: ev.SessionID,
		Details:   ev.Data,
	}
}

func categoryFor(t telemetry.EventType) Category {
	prefix, _, _ := strings.Cut(string(t), ".")
	switch prefix {
	case "turn":
		return CategoryTurn
	case "intent":
		return CategoryIntent
	case "clarification":
		return CategoryClarification
	case "tool":
		return CategoryTool
	case "pipeline":
		return CategoryPipeline
	case "model", "circuit":
		return CategoryModel
	}
	return CategorySession
}

func levelFor(t telemetry.EventType) Level {
	switch t {
	case telemetry.EventToolFailed, telemetry.EventPipelineDegraded:
		return LevelError
	case telemetry.EventTurnCancelled, telemetry.EventTierFallback,
		telemetry.EventClarificationAbandoned, telemetry.EventCircuitStateChange:
		return LevelWarn
	case telemetry.EventStageStarted, telemetry.EventModelStreamStarted, telemetry.EventModelStreamEnded:
		return LevelDebug
	}
	return LevelInfo
}
