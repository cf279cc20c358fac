package tool

import (
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

// Outcome labels used for metrics and events.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeException = "exception"
)

// OutcomeOf classifies a tool execution.
func OutcomeOf(res *builtin.Result, err error) string {
	switch {
	case err != nil:
		return OutcomeException
	case res == nil || !res.Success:
		return OutcomeFailure
	default:
		return OutcomeSuccess
	}
}

func (r *Registry) telemetryMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*builtin.Result, error) {
			if ctx == nil {
				return next(ctx)
			}
			if ctx.StartTime.IsZero() {
				ctx.StartTime = time.Now()
			}

			spanCtx, span := telemetry.StartSpan(ctxContext(ctx), "tool."+ctx.ToolName,
				attribute.String("tool.name", ctx.ToolName),
				attribute.String("session.id", ctx.SessionID),
			)
			ctx.Context = spanCtx

			r.hub.Publish(telemetry.Event{
				Type:      telemetry.EventToolStarted,
				SessionID: ctx.SessionID,
				Data:      map[string]any{"tool": ctx.ToolName, "attempt": ctx.Attempt},
			})

			res, err := next(ctx)

			elapsed := time.Since(ctx.StartTime)
			outcome := OutcomeOf(res, err)
			telemetry.RecordToolExecution(ctx.ToolName, outcome, elapsed)

			data := map[string]any{
				"tool":        ctx.ToolName,
				"attempt":     ctx.Attempt,
				"outcome":     outcome,
				"duration_ms": elapsed.Milliseconds(),
			}
			eventType := telemetry.EventToolCompleted
			switch {
			case err != nil:
				eventType = telemetry.EventToolFailed
				data["error"] = err.Error()
			case res != nil && !res.Success:
				eventType = telemetry.EventToolFailed
				data["error"] = res.Error
			}
			r.hub.Publish(telemetry.Event{Type: eventType, SessionID: ctx.SessionID, Data: data})

			span.SetAttributes(attribute.String("tool.outcome", outcome))
			telemetry.EndSpan(span, err)
			return res, err
		}
	}
}
