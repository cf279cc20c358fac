// Package telemetry carries in-process agent events, Prometheus metrics and
// OpenTelemetry tracing.
package telemetry

import (
	"sync"
	"time"
)

// EventType identifies a telemetry event.
type EventType string

const (
	EventSessionEnded EventType = "session.ended"

	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnCancelled EventType = "turn.cancelled"

	EventIntentDetected EventType = "intent.detected"

	EventClarificationRequested EventType = "clarification.requested"
	EventClarificationResolved  EventType = "clarification.resolved"
	EventClarificationMismatch  EventType = "clarification.mismatch"
	EventClarificationAbandoned EventType = "clarification.abandoned"
	EventClarificationCleared   EventType = "clarification.cleared"

	EventToolStarted   EventType = "tool.started"
	EventToolCompleted EventType = "tool.completed"
	EventToolFailed    EventType = "tool.failed"

	EventStageStarted     EventType = "pipeline.stage_started"
	EventStageCompleted   EventType = "pipeline.stage_completed"
	EventTierFallback     EventType = "pipeline.tier_fallback"
	EventPipelineDegraded EventType = "pipeline.degraded"

	EventModelStreamStarted EventType = "model.stream_start"
	EventModelStreamEnded   EventType = "model.stream_end"

	EventCircuitStateChange EventType = "circuit.state_change"
)

// Event is a single telemetry record.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Publish delivers event to every subscriber that has buffer room. A nil hub
// is a no-op.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns an event channel and its unsubscribe func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Event, 64)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close closes every subscriber channel. Further publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
