package tool

import (
	"context"
	"time"

	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

// Timeout applies a per-tool or default timeout by updating the context.
func Timeout(defaultTimeout time.Duration, perTool map[string]time.Duration) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*builtin.Result, error) {
			if ctx == nil {
				return next(ctx)
			}
			timeout := defaultTimeout
			if t, ok := perTool[ctx.ToolName]; ok {
				timeout = t
			}
			if timeout <= 0 {
				return next(ctx)
			}

			timeoutCtx, cancel := context.WithTimeout(ctxContext(ctx), timeout)
			defer cancel()

			ctx.Context = timeoutCtx
			return next(ctx)
		}
	}
}
