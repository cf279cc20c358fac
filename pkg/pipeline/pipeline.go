// Package pipeline generates workouts through a fixed sequence of model
// calls spread across the fast and capable tiers.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/router"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageIntentAnalysis      Stage = "intent_analysis"
	StageParameterExtraction Stage = "parameter_extraction"
	StageValidation          Stage = "validation"
	StageGeneration          Stage = "generation"
	StageFormatting          Stage = "formatting"
)

// Stages lists the stages in execution order.
var Stages = []Stage{
	StageIntentAnalysis,
	StageParameterExtraction,
	StageValidation,
	StageGeneration,
	StageFormatting,
}

// PreferredTier is the tier each stage tries first.
func (s Stage) PreferredTier() model.Tier {
	switch s {
	case StageIntentAnalysis, StageFormatting:
		return model.TierFast
	default:
		return model.TierCapable
	}
}

// DefaultCallTimeout bounds each backend call.
const DefaultCallTimeout = 30 * time.Second

// FallbackMessage is returned when no tier can complete a required stage.
const FallbackMessage = "I couldn't put a workout together right now because my planning models are unavailable. Please try again in a moment."

// StageResult records how one stage ran.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Tier     model.Tier    `json:"tier,omitempty"`
	Backend  string        `json:"backend,omitempty"`
	FellBack bool          `json:"fell_back"`
	Local    bool          `json:"local"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      string        `json:"error,omitempty"`
}

// Result is the outcome of a full run. Degraded runs carry no workout and
// a Summary suitable for the user.
type Result struct {
	Goal     string
	Request  workout.Request
	Workout  *workout.Workout
	Summary  string
	Stages   []StageResult
	Degraded bool
}

// Pipeline runs the five generation stages.
type Pipeline struct {
	tiers       *model.Tiers
	router      *router.Router
	catalog     *workout.Catalog
	hub         *telemetry.Hub
	logger      *zap.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRouter lets routing hooks observe or override stage tiers.
func WithRouter(r *router.Router) Option {
	return func(p *Pipeline) { p.router = r }
}

// WithCatalog supplies exercise suggestions to the generation stage.
func WithCatalog(c *workout.Catalog) Option {
	return func(p *Pipeline) { p.catalog = c }
}

// WithTelemetry publishes stage events to hub.
func WithTelemetry(hub *telemetry.Hub) Option {
	return func(p *Pipeline) { p.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCallTimeout bounds each backend call. Non-positive values keep the
// default.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// New builds a pipeline over tiers.
func New(tiers *model.Tiers, opts ...Option) *Pipeline {
	p := &Pipeline{
		tiers:       tiers,
		catalog:     workout.DefaultCatalog(),
		logger:      zap.NewNop(),
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate runs the pipeline for req. A degraded run returns a nil
// workout, the fallback message, and a nil error. The only error returned
// is ctx's.
func (p *Pipeline) Generate(ctx context.Context, req workout.Request) (*workout.Workout, string, error) {
	res, err := p.Run(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return res.Workout, res.Summary, nil
}

// Run executes every stage in order, feeding each output to the next.
func (p *Pipeline) Run(ctx context.Context, req workout.Request) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.run",
		attribute.String("workout.muscle_group", req.MuscleGroup),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	res = &Result{Request: req}

	goal, sr, err := p.analyzeIntent(ctx, req)
	res.Stages = append(res.Stages, sr)
	if err != nil {
		return p.degrade(ctx, res, StageIntentAnalysis, err)
	}
	res.Goal = goal

	extracted, sr, err := p.extractParameters(ctx, req, goal)
	res.Stages = append(res.Stages, sr)
	if err != nil {
		return p.degrade(ctx, res, StageParameterExtraction, err)
	}

	validated, sr, err := p.validate(ctx, extracted)
	res.Stages = append(res.Stages, sr)
	if err != nil {
		return p.degrade(ctx, res, StageValidation, err)
	}
	res.Request = validated

	w, sr, err := p.generate(ctx, validated, goal)
	res.Stages = append(res.Stages, sr)
	if err != nil {
		return p.degrade(ctx, res, StageGeneration, err)
	}
	res.Workout = w

	summary, sr, err := p.format(ctx, w, goal)
	res.Stages = append(res.Stages, sr)
	if err != nil {
		return p.degrade(ctx, res, StageFormatting, err)
	}
	res.Summary = summary
	return res, nil
}

// degrade converts a stage failure into a graceful result unless ctx was
// cancelled by the caller.
func (p *Pipeline) degrade(ctx context.Context, res *Result, stage Stage, err error) (*Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	p.logger.Warn("pipeline degraded",
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	p.hub.Publish(telemetry.Event{
		Type:      telemetry.EventPipelineDegraded,
		Timestamp: p.now(),
		Data:      map[string]any{"stage": string(stage), "error": err.Error()},
	})
	res.Workout = nil
	res.Summary = FallbackMessage
	res.Degraded = true
	return res, nil
}
