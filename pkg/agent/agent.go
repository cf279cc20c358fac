// Package agent orchestrates conversation turns: it classifies input, drives
// the clarification state machine, runs tools against working memory and
// records the outcome in episodic memory, chat history and the event bus.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/bus"
	"github.com/odvcencio/repcoach/pkg/clarify"
	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/pipeline"
	"github.com/odvcencio/repcoach/pkg/router"
	"github.com/odvcencio/repcoach/pkg/storage"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// DefaultHistoryLimit is how many stored messages Resume replays.
const DefaultHistoryLimit = 50

// ErrSessionNotFound is returned for ids that are neither live nor stored.
var ErrSessionNotFound = rcerrors.New(rcerrors.CodeSessionNotFound, "session not found")

// Agent is the conversation orchestrator. It is safe for concurrent use;
// turns on the same session are serialized by the session lock.
type Agent struct {
	sessions   *memory.Store
	classifier *intent.Classifier
	clarifier  *clarify.Manager
	tools      *tool.Registry
	router     *router.Router
	tiers      *model.Tiers
	chats      ChatStore
	bus        bus.MessageBus
	busPrefix  string
	hub        *telemetry.Hub
	logger     *zap.Logger

	callTimeout  time.Duration
	historyLimit int
	now          func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithSessionStore sets the live session arena.
func WithSessionStore(s *memory.Store) Option {
	return func(a *Agent) { a.sessions = s }
}

// WithClassifier sets the intent classifier.
func WithClassifier(c *intent.Classifier) Option {
	return func(a *Agent) { a.classifier = c }
}

// WithClarifier sets the clarification manager.
func WithClarifier(m *clarify.Manager) Option {
	return func(a *Agent) { a.clarifier = m }
}

// WithRegistry sets the tool registry.
func WithRegistry(r *tool.Registry) Option {
	return func(a *Agent) { a.tools = r }
}

// WithRouter sets the router used for free-form model calls.
func WithRouter(r *router.Router) Option {
	return func(a *Agent) { a.router = r }
}

// WithTiers sets the backends used for free-form model calls.
func WithTiers(t *model.Tiers) Option {
	return func(a *Agent) { a.tiers = t }
}

// WithChatStore persists every turn and lets sessions be resumed.
func WithChatStore(cs ChatStore) Option {
	return func(a *Agent) { a.chats = cs }
}

// WithBus publishes a TurnEvent per turn under prefix.
func WithBus(b bus.MessageBus, prefix string) Option {
	return func(a *Agent) {
		a.bus = b
		if prefix != "" {
			a.busPrefix = prefix
		}
	}
}

// WithTelemetry publishes turn events to hub.
func WithTelemetry(hub *telemetry.Hub) Option {
	return func(a *Agent) { a.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCallTimeout bounds each free-form backend call.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithHistoryLimit caps how many stored messages Resume replays; n <= 0
// replays everything.
func WithHistoryLimit(n int) Option {
	return func(a *Agent) { a.historyLimit = n }
}

// New builds an agent. Unset collaborators get working defaults: an
// in-memory session store, the default classifier and clarifier, and a
// registry without create_workout.
func New(opts ...Option) *Agent {
	a := &Agent{
		busPrefix:    bus.DefaultPrefix,
		logger:       zap.NewNop(),
		callTimeout:  pipeline.DefaultCallTimeout,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sessions == nil {
		a.sessions = memory.NewStore(memory.DefaultMaxTurns)
	}
	if a.classifier == nil {
		a.classifier = intent.NewClassifier()
	}
	if a.clarifier == nil {
		a.clarifier = clarify.NewManager()
	}
	if a.tools == nil {
		a.tools = tool.NewRegistry(tool.WithTelemetry(a.hub))
	}
	if a.router == nil {
		a.router = router.New()
	}
	if a.tiers == nil {
		a.tiers = &model.Tiers{}
	}
	return a
}

// StartSession opens a new session for userID. With a chat store the id
// comes from the store so history can be persisted against it.
func (a *Agent) StartSession(ctx context.Context, userID string) (*memory.Session, error) {
	id := ulid.Make().String()
	if a.chats != nil {
		stored, err := a.chats.CreateSession(ctx, userID)
		if err != nil {
			return nil, rcerrors.Wrap(err, rcerrors.CodeStorageWrite, "create session")
		}
		id = stored
	}
	sess := a.sessions.Open(id, userID)
	telemetry.SetActiveSessions(a.sessions.Len())
	a.logger.Debug("session started", zap.String("session_id", id), zap.String("user_id", userID))
	return sess, nil
}

// Session returns a live session.
func (a *Agent) Session(id string) (*memory.Session, bool) {
	return a.sessions.Get(id)
}

// Resume returns the live session for id or rebuilds its episodic memory
// from the chat store. Working memory does not survive a restart.
func (a *Agent) Resume(ctx context.Context, id, userID string) (*memory.Session, error) {
	if sess, ok := a.sessions.Get(id); ok {
		return sess, nil
	}
	if a.chats == nil {
		return nil, ErrSessionNotFound
	}
	msgs, err := a.chats.GetMessages(ctx, id, a.historyLimit)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, rcerrors.Wrap(err, rcerrors.CodeStorageRead, "load history")
	}
	if len(msgs) == 0 {
		if checker, ok := a.chats.(sessionChecker); ok {
			if _, err := checker.GetSession(ctx, id); err != nil {
				if errors.Is(err, storage.ErrSessionNotFound) {
					return nil, ErrSessionNotFound
				}
				return nil, rcerrors.Wrap(err, rcerrors.CodeStorageRead, "load session")
			}
		}
	}

	sess := a.sessions.Open(id, userID)
	sess.Lock()
	defer sess.Unlock()
	if sess.Episodic.Len() == 0 {
		for _, turn := range turnsFromMessages(msgs) {
			sess.Episodic.Append(turn)
		}
	}
	telemetry.SetActiveSessions(a.sessions.Len())
	return sess, nil
}

// lockTurn takes the session's turn lock and readmits it if an idle sweep
// dropped it after the caller looked it up.
func (a *Agent) lockTurn(sess *memory.Session) {
	sess.Lock()
	if a.sessions.Readmit(sess) {
		a.logger.Debug("session readmitted after eviction", zap.String("session_id", sess.ID))
		telemetry.SetActiveSessions(a.sessions.Len())
	}
}

// EndSession drops a live session. Stored history is kept.
func (a *Agent) EndSession(id string) {
	a.sessions.Delete(id)
	telemetry.SetActiveSessions(a.sessions.Len())
	a.publish(telemetry.EventSessionEnded, id, map[string]any{"reason": "closed"})
}

// CurrentWorkout returns a copy of the session's active workout.
func (a *Agent) CurrentWorkout(id string) (*workout.Workout, bool) {
	sess, ok := a.sessions.Get(id)
	if !ok {
		return nil, false
	}
	sess.Lock()
	defer sess.Unlock()
	w := sess.Working.Snapshot().CurrentWorkout()
	return w, w != nil
}

// Tools describes the registered tools.
func (a *Agent) Tools() []tool.Info {
	list := a.tools.List()
	out := make([]tool.Info, 0, len(list))
	for _, t := range list {
		out = append(out, tool.Describe(t))
	}
	return out
}

// SweepIdle evicts sessions idle for longer than idle.
func (a *Agent) SweepIdle(idle time.Duration) []string {
	evicted := a.sessions.Sweep(idle)
	if len(evicted) > 0 {
		a.logger.Info("evicted idle sessions", zap.Strings("session_ids", evicted))
	}
	for _, id := range evicted {
		a.publish(telemetry.EventSessionEnded, id, map[string]any{"reason": "idle"})
	}
	telemetry.SetActiveSessions(a.sessions.Len())
	return evicted
}

// RunSweeper calls SweepIdle every interval until ctx is done.
func (a *Agent) RunSweeper(ctx context.Context, idle, interval time.Duration) error {
	if idle <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.SweepIdle(idle)
		}
	}
}

func (a *Agent) publish(typ telemetry.EventType, sessionID string, data map[string]any) {
	if a.hub == nil {
		return
	}
	a.hub.Publish(telemetry.Event{
		Type:      typ,
		Timestamp: a.now(),
		SessionID: sessionID,
		Data:      data,
	})
}
