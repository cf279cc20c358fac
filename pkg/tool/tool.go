// Package tool maps tool names to executable capabilities and runs them
// through a middleware chain.
package tool

import (
	"context"

	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

// Tool is a named capability the agent can invoke. Execute receives a
// read-only snapshot of working memory and reports every effect through the
// returned Result.
//
//go:generate mockgen -package=tool -destination=mock_tool_test.go github.com/odvcencio/repcoach/pkg/tool Tool
type Tool interface {
	Name() string
	Description() string
	Parameters() builtin.ParameterSchema
	Execute(ctx context.Context, params map[string]any, snap memory.Snapshot) (*builtin.Result, error)
}

// Info is a serializable description of a registered tool.
type Info struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Parameters  builtin.ParameterSchema `json:"parameters"`
}

// Describe returns the Info for t.
func Describe(t Tool) Info {
	return Info{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}
