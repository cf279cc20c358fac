package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// ErrToolNotFound is returned when no tool is registered under a name.
var ErrToolNotFound = errors.New("tool not found")

// Call is a single tool invocation.
type Call struct {
	SessionID string
	Name      string
	Params    map[string]any
	Snapshot  memory.Snapshot
}

// Registry manages all available tools.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	middlewares []Middleware
	executor    Executor
	hub         *telemetry.Hub
}

type registryOptions struct {
	generator builtin.WorkoutGenerator
	catalog   *workout.Catalog
	hub       *telemetry.Hub
}

// RegistryOption configures registry construction.
type RegistryOption func(*registryOptions)

// WithGenerator wires the workout generator used by create_workout.
func WithGenerator(g builtin.WorkoutGenerator) RegistryOption {
	return func(o *registryOptions) { o.generator = g }
}

// WithCatalog overrides the exercise catalog used by exercise_info.
func WithCatalog(c *workout.Catalog) RegistryOption {
	return func(o *registryOptions) { o.catalog = c }
}

// WithTelemetry publishes tool lifecycle events to hub.
func WithTelemetry(hub *telemetry.Hub) RegistryOption {
	return func(o *registryOptions) { o.hub = hub }
}

// NewEmptyRegistry creates a registry without built-in tools.
func NewEmptyRegistry(opts ...RegistryOption) *Registry {
	cfg := registryOptions{}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Registry{
		tools: make(map[string]Tool),
		hub:   cfg.hub,
	}
	r.rebuildExecutor()
	return r
}

// NewRegistry creates a registry with the built-in tools. create_workout is
// only registered when a generator is supplied.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryOptions{}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Registry{
		tools: make(map[string]Tool),
		hub:   cfg.hub,
	}
	catalog := cfg.catalog
	if catalog == nil {
		catalog = workout.DefaultCatalog()
	}
	r.Register(&builtin.ModifyWorkoutTool{})
	r.Register(&builtin.ExerciseInfoTool{Catalog: catalog})
	if cfg.generator != nil {
		r.Register(&builtin.CreateWorkoutTool{Generator: cfg.generator})
	}
	r.rebuildExecutor()
	return r
}

// Register registers a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	if r == nil || t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	r.mu.RUnlock()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Use appends a middleware to the chain.
func (r *Registry) Use(mw Middleware) {
	if r == nil || mw == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
	r.rebuildExecutorLocked()
}

// Execute runs a tool. An unknown name returns ErrToolNotFound without
// invoking anything. Panics inside tools come back as *PanicError.
func (r *Registry) Execute(ctx context.Context, call Call) (*builtin.Result, error) {
	name := strings.TrimSpace(call.Name)
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	params := call.Params
	if params == nil {
		params = map[string]any{}
	}
	execCtx := &ExecutionContext{
		Context:   ctx,
		ToolName:  name,
		Tool:      t,
		SessionID: call.SessionID,
		Params:    params,
		Snapshot:  call.Snapshot,
		StartTime: time.Now(),
		Attempt:   1,
		Metadata:  make(map[string]any),
	}

	r.mu.RLock()
	exec := r.executor
	r.mu.RUnlock()
	return exec(execCtx)
}

func (r *Registry) rebuildExecutor() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildExecutorLocked()
}

// rebuildExecutorLocked orders the chain so telemetry sees the final
// outcome, including recovered panics.
func (r *Registry) rebuildExecutorLocked() {
	middlewares := make([]Middleware, 0, len(r.middlewares)+2)
	middlewares = append(middlewares, r.telemetryMiddleware(), Recover())
	middlewares = append(middlewares, r.middlewares...)
	r.executor = Chain(middlewares...)(baseExecutor)
}

func baseExecutor(ctx *ExecutionContext) (*builtin.Result, error) {
	if ctx == nil || ctx.Tool == nil {
		return nil, fmt.Errorf("execution context required")
	}
	execCtx := ctxContext(ctx)
	if err := execCtx.Err(); err != nil {
		return nil, err
	}
	return ctx.Tool.Execute(execCtx, ctx.Params, ctx.Snapshot)
}
