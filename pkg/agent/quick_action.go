package agent

import (
	"context"

	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/memory"
)

// QuickActionRequest is a single-shot command, e.g. from a UI button.
type QuickActionRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// QuickActionResponse reports the tool outcome of a quick action.
type QuickActionResponse struct {
	Success          bool           `json:"success"`
	Message          string         `json:"message"`
	NavigationTarget string         `json:"navigation_target,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
}

// ClarifyUnsupportedText answers an ambiguous quick action, which cannot
// ask a follow-up question.
const ClarifyUnsupportedText = "Tell me what to double: \"double the sets\", \"double the reps\" or \"double both\"."

// QuickAction resolves msg to exactly one tool call. Without a session id it
// works on a per-user session named quick-<user id>. There is no
// clarification round trip: ambiguous requests fail.
func (a *Agent) QuickAction(ctx context.Context, req QuickActionRequest) QuickActionResponse {
	id := req.SessionID
	if id == "" {
		id = "quick-" + req.UserID
	}
	sess := a.sessions.Open(id, req.UserID)
	a.lockTurn(sess)
	defer sess.Unlock()
	start := a.now()

	in := a.classifier.Detect(req.Message, sess.Working)
	o := &outcome{intent: in}
	var resp QuickActionResponse
	switch in.Name {
	case intent.AmbiguousDouble:
		o.errorText = ClarifyUnsupportedText
	case intent.NoWorkoutToDouble:
		o.errorText = NoWorkoutText
	case intent.DirectModification, intent.CreateWorkout, intent.ExerciseInfo:
		name, params := toolFor(in, sess.Working, req.Message)
		a.runTool(ctx, sess, name, params, o)
		if o.action != nil && o.action.Type == memory.ActionToolExecution {
			resp.Success = true
		}
		if o.result != nil {
			resp.NavigationTarget = o.result.NavigationTarget
			resp.Data = o.result.Data
		}
	default:
		o.errorText = FallbackText
	}
	if err := ctx.Err(); err != nil {
		o.errorText = err.Error()
	}
	resp.Message = o.text()

	reply := a.buildReply(sess, o)
	a.finish(context.WithoutCancel(ctx), sess, req.Message, reply, start, req.SessionID != "")
	return resp
}
