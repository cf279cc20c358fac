package tool

import (
	"fmt"

	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

// PanicError is returned when a tool panics.
type PanicError struct {
	Tool  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tool %s panicked: %v", e.Tool, e.Value)
}

// Recover converts a panic inside a tool into a *PanicError so it never
// escapes the registry.
func Recover() Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (res *builtin.Result, err error) {
			defer func() {
				if v := recover(); v != nil {
					name := ""
					if ctx != nil {
						name = ctx.ToolName
					}
					res, err = nil, &PanicError{Tool: name, Value: v}
				}
			}()
			return next(ctx)
		}
	}
}
