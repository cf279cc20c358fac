package agent

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/clarify"
	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// Reply is the agent's answer to one turn.
type Reply struct {
	SessionID        string                `json:"session_id"`
	Text             string                `json:"text"`
	Intent           intent.Intent         `json:"intent"`
	Action           *memory.Action        `json:"action,omitempty"`
	Clarification    *memory.Clarification `json:"clarification,omitempty"`
	Workout          *workout.Workout      `json:"workout,omitempty"`
	NavigationTarget string                `json:"navigation_target,omitempty"`
	Data             map[string]any        `json:"data,omitempty"`
	Truncated        bool                  `json:"truncated,omitempty"`
}

// outcome collects everything a turn produced before the response text is
// composed.
type outcome struct {
	intent        intent.Intent
	errorText     string
	clarification *memory.Clarification
	prompt        string
	result        *builtin.Result
	action        *memory.Action
	toolText      string
	canned        string
}

// text picks the response by priority: explicit error, clarification,
// tool output, canned intent text, generic fallback.
func (o *outcome) text() string {
	switch {
	case o.errorText != "":
		return o.errorText
	case o.prompt != "":
		return o.prompt
	case o.toolText != "":
		return o.toolText
	case o.canned != "":
		return o.canned
	}
	return FallbackText
}

// ProcessMessage runs one turn on sess and returns the reply.
func (a *Agent) ProcessMessage(ctx context.Context, sess *memory.Session, input string) (*Reply, error) {
	return a.turn(ctx, sess, input, nil)
}

// StreamMessage runs one turn and delivers the reply through onChunk as it
// is produced. Text that is not generated by a model arrives as a single
// chunk. When ctx is cancelled mid-turn the text streamed so far becomes
// the recorded response, flagged truncated, and ctx's error is returned
// along with the partial reply.
func (a *Agent) StreamMessage(ctx context.Context, sess *memory.Session, input string, onChunk model.ChunkFunc) (*Reply, error) {
	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}
	return a.turn(ctx, sess, input, onChunk)
}

func (a *Agent) turn(ctx context.Context, sess *memory.Session, input string, onChunk model.ChunkFunc) (*Reply, error) {
	if sess == nil {
		return nil, rcerrors.New(rcerrors.CodeInvalidInput, "session required")
	}
	a.lockTurn(sess)
	defer sess.Unlock()

	start := a.now()
	ctx, span := telemetry.StartSpan(ctx, "agent.turn",
		attribute.String("session.id", sess.ID),
		attribute.Bool("agent.streaming", onChunk != nil),
	)
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	a.publish(telemetry.EventTurnStarted, sess.ID, map[string]any{"input": input})

	var streamed strings.Builder
	if onChunk != nil {
		ctx = model.WithStreamSink(ctx, func(chunk string) error {
			streamed.WriteString(chunk)
			return onChunk(chunk)
		})
	}

	out := a.respond(ctx, sess, input)
	reply := a.buildReply(sess, out)

	if err := ctx.Err(); err != nil {
		reply.Text = streamed.String()
		reply.Truncated = true
		a.finish(context.WithoutCancel(ctx), sess, input, reply, start, true)
		a.publish(telemetry.EventTurnCancelled, sess.ID, map[string]any{
			"partial_length": len(reply.Text),
		})
		spanErr = err
		return reply, err
	}

	if onChunk != nil && streamed.Len() == 0 && reply.Text != "" {
		if err := onChunk(reply.Text); err != nil {
			a.logger.Debug("stream consumer rejected reply", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	a.finish(ctx, sess, input, reply, start, true)
	return reply, nil
}

// respond decides what the turn does. A pending clarification is resolved
// first unless the input is a high-priority interruption or a fresh
// ambiguous request.
func (a *Agent) respond(ctx context.Context, sess *memory.Session, input string) *outcome {
	wm := sess.Working
	pending := a.clarifier.State(wm) == clarify.StateAwaitingAnswer
	in := a.classifier.Detect(input, wm)
	a.publish(telemetry.EventIntentDetected, sess.ID, map[string]any{
		"intent":     in.Name,
		"confidence": in.Confidence,
	})
	o := &outcome{intent: in}

	if pending {
		switch {
		case in.HighPriority():
			a.clarifier.Clear(wm)
			a.clarificationEvent(sess.ID, "cleared", telemetry.EventClarificationCleared)
			o.canned = cannedText(in.Name)
			return o
		case in.Name == intent.AmbiguousDouble:
			a.askClarification(sess, in, o)
			return o
		}
		a.resolveClarification(ctx, sess, input, o)
		return o
	}

	switch in.Name {
	case intent.AmbiguousDouble:
		a.askClarification(sess, in, o)
	case intent.NoWorkoutToDouble:
		o.errorText = NoWorkoutText
	case intent.DirectModification, intent.CreateWorkout, intent.ExerciseInfo:
		name, params := toolFor(in, wm, input)
		a.runTool(ctx, sess, name, params, o)
		if in.Name == intent.ExerciseInfo && builtin.IsNotFound(o.result) {
			a.describeFallback(ctx, in.Slot(intent.SlotExercise), input, o)
		}
	default:
		o.canned = cannedText(in.Name)
	}
	return o
}

func (a *Agent) askClarification(sess *memory.Session, in intent.Intent, o *outcome) {
	c := a.clarifier.Begin(sess.Working, in)
	if c == nil {
		o.errorText = NoWorkoutText
		return
	}
	o.clarification = c
	o.prompt = c.Question
	a.clarificationEvent(sess.ID, "requested", telemetry.EventClarificationRequested)
}

func (a *Agent) resolveClarification(ctx context.Context, sess *memory.Session, input string, o *outcome) {
	res := a.clarifier.Resolve(sess.Working, input)
	o.intent = res.Intent
	switch res.Outcome {
	case clarify.OutcomeResolved:
		a.clarificationEvent(sess.ID, "resolved", telemetry.EventClarificationResolved)
		a.runTool(ctx, sess, modifyWorkoutTool, builtin.PlanParams(res.Plan), o)
	case clarify.OutcomeMismatch:
		a.clarificationEvent(sess.ID, "mismatch", telemetry.EventClarificationMismatch)
		o.clarification = sess.Working.PendingClarification.Clone()
		o.prompt = res.Prompt
	case clarify.OutcomeAbandoned:
		a.clarificationEvent(sess.ID, "abandoned", telemetry.EventClarificationAbandoned)
		o.errorText = res.Prompt
	}
}

func (a *Agent) clarificationEvent(sessionID, outcome string, typ telemetry.EventType) {
	telemetry.RecordClarification(outcome)
	a.publish(typ, sessionID, nil)
}

func (a *Agent) buildReply(sess *memory.Session, o *outcome) *Reply {
	reply := &Reply{
		SessionID:     sess.ID,
		Text:          o.text(),
		Intent:        o.intent,
		Action:        o.action,
		Clarification: o.clarification,
	}
	if o.result != nil {
		reply.NavigationTarget = o.result.NavigationTarget
		reply.Data = o.result.Data
	}
	if o.action != nil && o.action.Type == memory.ActionToolExecution {
		reply.Workout = sess.Working.Snapshot().CurrentWorkout()
	}
	return reply
}

// finish records the turn everywhere it is observed. ctx may be detached
// from the caller when the turn was cancelled. persist controls the chat
// store write.
func (a *Agent) finish(ctx context.Context, sess *memory.Session, input string, reply *Reply, start time.Time, persist bool) {
	turn := memory.Turn{
		UserInput:     input,
		AgentResponse: reply.Text,
		Timestamp:     a.now(),
		Truncated:     reply.Truncated,
	}
	sess.Episodic.Append(turn)
	if persist {
		a.persistTurn(ctx, sess, turn)
	}
	a.publishTurn(ctx, sess, turn, reply)

	elapsed := a.now().Sub(start)
	telemetry.RecordTurn(reply.Intent.Name, elapsed)
	telemetry.SetActiveSessions(a.sessions.Len())
	a.publish(telemetry.EventTurnCompleted, sess.ID, map[string]any{
		"intent":    reply.Intent.Name,
		"truncated": reply.Truncated,
		"elapsed":   elapsed.String(),
	})
	a.logger.Debug("turn completed",
		zap.String("session_id", sess.ID),
		zap.String("intent", reply.Intent.Name),
		zap.Bool("truncated", reply.Truncated),
		zap.Duration("elapsed", elapsed),
	)
}
