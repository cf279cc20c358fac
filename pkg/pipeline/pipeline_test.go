package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/model/mocks"
	"github.com/odvcencio/repcoach/pkg/router"
	"github.com/odvcencio/repcoach/pkg/workout"
)

type handler func(req model.Request) (string, error)

// scriptedBackend answers per stage based on the system prompt.
type scriptedBackend struct {
	id       string
	handlers map[Stage]handler

	mu    sync.Mutex
	calls []Stage
}

func stageOf(req model.Request) Stage {
	switch {
	case strings.Contains(req.System, "intent analysis step"):
		return StageIntentAnalysis
	case strings.Contains(req.System, "parameter extraction step"):
		return StageParameterExtraction
	case strings.Contains(req.System, "validation step"):
		return StageValidation
	case strings.Contains(req.System, "generation step"):
		return StageGeneration
	default:
		return StageFormatting
	}
}

func (b *scriptedBackend) ID() string { return b.id }

func (b *scriptedBackend) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	stage := stageOf(req)
	b.mu.Lock()
	b.calls = append(b.calls, stage)
	b.mu.Unlock()
	h, ok := b.handlers[stage]
	if !ok {
		return nil, errors.New(b.id + " has no handler for " + string(stage))
	}
	content, err := h(req)
	if err != nil {
		return nil, err
	}
	return &model.Response{Success: true, Content: content}, nil
}

func (b *scriptedBackend) Stream(ctx context.Context, req model.Request, onChunk model.ChunkFunc) (*model.Response, error) {
	resp, err := b.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(resp.Content, " ") {
		if err := onChunk(word); err != nil {
			return &model.Response{Content: resp.Content}, err
		}
	}
	return resp, nil
}

func (b *scriptedBackend) stages() []Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Stage(nil), b.calls...)
}

func fixed(s string) handler {
	return func(model.Request) (string, error) { return s, nil }
}

func failing(msg string) handler {
	return func(model.Request) (string, error) { return "", errors.New(msg) }
}

const generatedJSON = "```json\n" + `{"name":"Leg Day","exercises":[{"name":"squat","sets":4,"reps":8,"rest_seconds":90},{"name":"lunge","sets":0,"reps":0}]}` + "\n```"

func allStages() map[Stage]handler {
	return map[Stage]handler{
		StageIntentAnalysis:      fixed("The user wants a leg workout."),
		StageParameterExtraction: fixed(`{"muscle_group":"Legs","duration_minutes":40,"experience_level":"Intermediate","equipment":"barbell"}`),
		StageValidation:          fixed(`Sure: {"muscle_group":"legs","duration_minutes":40,"experience_level":"intermediate"}`),
		StageGeneration:          fixed(generatedJSON),
		StageFormatting:          fixed("Leg Day is ready: squats then lunges."),
	}
}

func TestRunHappyPath(t *testing.T) {
	fast := &scriptedBackend{id: "fast", handlers: allStages()}
	capable := &scriptedBackend{id: "capable", handlers: allStages()}
	p := New(&model.Tiers{Fast: fast, Capable: capable})

	res, err := p.Run(context.Background(), workout.Request{Text: "make me a leg workout", ExperienceLevel: "advanced"})
	require.NoError(t, err)
	require.False(t, res.Degraded)

	assert.Equal(t, []Stage{StageIntentAnalysis, StageFormatting}, fast.stages())
	assert.Equal(t, []Stage{StageParameterExtraction, StageValidation, StageGeneration}, capable.stages())

	require.Len(t, res.Stages, len(Stages))
	for i, sr := range res.Stages {
		assert.Equal(t, Stages[i], sr.Stage)
		assert.Equal(t, Stages[i].PreferredTier(), sr.Tier)
		assert.False(t, sr.FellBack)
	}

	assert.Equal(t, "The user wants a leg workout.", res.Goal)
	assert.Equal(t, "legs", res.Request.MuscleGroup)
	assert.Equal(t, 40, res.Request.DurationMinutes)
	// validation corrected the caller's level
	assert.Equal(t, "intermediate", res.Request.ExperienceLevel)

	require.NotNil(t, res.Workout)
	assert.Equal(t, "Leg Day", res.Workout.Name)
	assert.NotEmpty(t, res.Workout.ID)
	require.Len(t, res.Workout.Exercises, 2)
	lunge, ok := workout.DefaultCatalog().Lookup("lunge")
	require.True(t, ok)
	assert.Equal(t, lunge.DefaultSets, res.Workout.Exercises[1].Sets)
	assert.Equal(t, "Leg Day is ready: squats then lunges.", res.Summary)
}

func TestRunFallsBackToOtherTier(t *testing.T) {
	fast := &scriptedBackend{id: "fast", handlers: allStages()}
	capable := &scriptedBackend{id: "capable", handlers: map[Stage]handler{
		StageParameterExtraction: failing("overloaded"),
		StageValidation:          failing("overloaded"),
		StageGeneration:          fixed("not json at all"),
	}}
	p := New(&model.Tiers{Fast: fast, Capable: capable})

	res, err := p.Run(context.Background(), workout.Request{Text: "leg workout"})
	require.NoError(t, err)
	require.False(t, res.Degraded)

	for _, sr := range res.Stages[1:4] {
		assert.True(t, sr.FellBack, sr.Stage)
		assert.Equal(t, model.TierFast, sr.Tier, sr.Stage)
		assert.Equal(t, "fast", sr.Backend)
	}
	assert.NotNil(t, res.Workout)
}

func TestRunBothTiersUnavailable(t *testing.T) {
	p := New(&model.Tiers{})
	w, msg, err := p.Generate(context.Background(), workout.Request{Text: "chest day"})
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Equal(t, FallbackMessage, msg)
}

func TestRunBothTiersFailing(t *testing.T) {
	ctrl := gomock.NewController(t)
	fast := mocks.NewMockBackend(ctrl)
	capable := mocks.NewMockBackend(ctrl)
	for _, b := range []*mocks.MockBackend{fast, capable} {
		b.EXPECT().ID().Return("mock").AnyTimes()
		b.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)
	}

	p := New(&model.Tiers{Fast: fast, Capable: capable})
	res, err := p.Run(context.Background(), workout.Request{Text: "arms"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, FallbackMessage, res.Summary)
	require.Len(t, res.Stages, 1)
	assert.True(t, res.Stages[0].FellBack)
	assert.Contains(t, res.Stages[0].Err, "connection refused")
}

func TestRunUnsuccessfulResponseFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	fast := mocks.NewMockBackend(ctrl)
	fast.EXPECT().ID().Return("fast").AnyTimes()
	fast.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(&model.Response{Success: false}, nil).AnyTimes()

	capable := &scriptedBackend{id: "capable", handlers: allStages()}
	p := New(&model.Tiers{Fast: fast, Capable: capable})

	res, err := p.Run(context.Background(), workout.Request{Text: "legs"})
	require.NoError(t, err)
	assert.True(t, res.Stages[0].FellBack)
	assert.Equal(t, model.TierCapable, res.Stages[0].Tier)
}

func TestValidationFallsBackToLocalBounds(t *testing.T) {
	handlers := allStages()
	handlers[StageParameterExtraction] = fixed(`{"duration_minutes":500}`)
	handlers[StageValidation] = failing("down")
	b := &scriptedBackend{id: "both", handlers: handlers}
	p := New(&model.Tiers{Fast: b, Capable: b})

	res, err := p.Run(context.Background(), workout.Request{Text: "long session"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.True(t, res.Stages[2].Local)
	assert.Equal(t, workout.MaxDurationMinutes, res.Request.DurationMinutes)
	assert.Equal(t, workout.DefaultMuscleGroup, res.Request.MuscleGroup)
	assert.Equal(t, workout.DefaultLevel, res.Request.ExperienceLevel)
}

func TestFormattingStreamsThroughSink(t *testing.T) {
	b := &scriptedBackend{id: "both", handlers: allStages()}
	p := New(&model.Tiers{Fast: b, Capable: b})

	var chunks []string
	ctx := model.WithStreamSink(context.Background(), func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	_, summary, err := p.Generate(ctx, workout.Request{Text: "legs"})
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, summary, strings.Join(chunks, ""))
}

func TestFormattingFallsBackToLocalSummary(t *testing.T) {
	handlers := allStages()
	handlers[StageFormatting] = failing("down")
	b := &scriptedBackend{id: "both", handlers: handlers}
	p := New(&model.Tiers{Fast: b, Capable: b})

	var streamed strings.Builder
	ctx := model.WithStreamSink(context.Background(), func(s string) error {
		streamed.WriteString(s)
		return nil
	})
	w, summary, err := p.Generate(ctx, workout.Request{Text: "legs"})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, Summarize(w), summary)
	assert.Equal(t, summary, streamed.String())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &scriptedBackend{id: "both", handlers: map[Stage]handler{
		StageIntentAnalysis: func(model.Request) (string, error) {
			cancel()
			return "", context.Canceled
		},
	}}
	p := New(&model.Tiers{Fast: b, Capable: b})

	_, _, err := p.Generate(ctx, workout.Request{Text: "legs"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.stages(), 1)
}

// slowBackend blocks until its call context ends.
type slowBackend struct{}

func (slowBackend) ID() string { return "slow" }

func (slowBackend) Complete(ctx context.Context, _ model.Request) (*model.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s slowBackend) Stream(ctx context.Context, req model.Request, _ model.ChunkFunc) (*model.Response, error) {
	return s.Complete(ctx, req)
}

func TestCallTimeoutFallsBack(t *testing.T) {
	fast := &scriptedBackend{id: "fast", handlers: allStages()}
	p := New(&model.Tiers{Fast: fast, Capable: slowBackend{}}, WithCallTimeout(20*time.Millisecond))

	res, err := p.Run(context.Background(), workout.Request{Text: "legs"})
	require.NoError(t, err)
	require.False(t, res.Degraded)
	assert.True(t, res.Stages[1].FellBack)
	assert.Equal(t, model.TierFast, res.Stages[1].Tier)
}

func TestRouterHookOverridesStageTier(t *testing.T) {
	r := router.New(router.WithHook(func(d *router.Decision) *router.Decision {
		if d.Stage == string(StageGeneration) {
			forced := *d
			forced.Tier = model.TierFast
			return &forced
		}
		return nil
	}))
	fast := &scriptedBackend{id: "fast", handlers: allStages()}
	capable := &scriptedBackend{id: "capable", handlers: allStages()}
	p := New(&model.Tiers{Fast: fast, Capable: capable}, WithRouter(r))

	res, err := p.Run(context.Background(), workout.Request{Text: "legs"})
	require.NoError(t, err)
	assert.Equal(t, model.TierFast, res.Stages[3].Tier)
	assert.Contains(t, fast.stages(), StageGeneration)
	assert.NotContains(t, capable.stages(), StageGeneration)
}

func TestSummarize(t *testing.T) {
	w := &workout.Workout{
		Name:            "Push",
		DurationMinutes: 30,
		ExperienceLevel: "beginner",
		Exercises: []workout.Exercise{
			{Name: "bench press", Sets: 3, Reps: 10, RestSeconds: 60},
			{Name: "push-up", Sets: 2, Reps: 15},
		},
	}
	assert.Equal(t, "Here's your Push (30 min, beginner):\n1. bench press: 3 x 10, rest 60s\n2. push-up: 2 x 15", Summarize(w))
	assert.Empty(t, Summarize(nil))
}

func TestDecodeJSON(t *testing.T) {
	var p parameters
	require.NoError(t, decodeJSON("here you go {\"duration_minutes\": 20} thanks", &p))
	assert.Equal(t, 20, p.DurationMinutes)
	assert.Error(t, decodeJSON("nothing", &p))
	assert.Error(t, decodeJSON("{broken", &p))
}
