package builtin

import (
	"context"
	"errors"

	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// Parameter keys understood by CreateWorkoutTool.
const (
	ParamRequest         = "request"
	ParamMuscleGroup     = "muscle_group"
	ParamDuration        = "duration"
	ParamExperienceLevel = "experience_level"
)

// WorkoutGenerator produces a workout and a user-facing summary. A nil
// workout with a nil error means generation degraded gracefully and the
// summary explains why.
type WorkoutGenerator interface {
	Generate(ctx context.Context, req workout.Request) (*workout.Workout, string, error)
}

// CreateWorkoutTool generates a new workout that replaces the current one.
type CreateWorkoutTool struct {
	Generator WorkoutGenerator
}

func (t *CreateWorkoutTool) Name() string {
	return "create_workout"
}

func (t *CreateWorkoutTool) Description() string {
	return "Create a new workout for a muscle group, duration, and experience level."
}

func (t *CreateWorkoutTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			ParamRequest:         {Type: "string", Description: "The user's request in their own words"},
			ParamMuscleGroup:     {Type: "string", Description: "Target muscle group, e.g. chest or full body"},
			ParamDuration:        {Type: "integer", Description: "Session length in minutes"},
			ParamExperienceLevel: {Type: "string", Description: "Experience level", Enum: workout.Levels},
		},
		Required: []string{ParamRequest},
	}
}

func (t *CreateWorkoutTool) Execute(ctx context.Context, params map[string]any, _ memory.Snapshot) (*Result, error) {
	if t.Generator == nil {
		return nil, errors.New("workout generator not configured")
	}
	req := workout.Request{
		Text:            stringParam(params, ParamRequest),
		MuscleGroup:     stringParam(params, ParamMuscleGroup),
		ExperienceLevel: stringParam(params, ParamExperienceLevel),
	}
	if minutes, ok := intParam(params, ParamDuration); ok {
		req.DurationMinutes = minutes
	}

	w, summary, err := t.Generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return Failure(summary), nil
	}
	return &Result{
		Success:          true,
		Message:          summary,
		UpdatedWorkout:   w,
		NavigationTarget: "workout/" + w.ID,
		Data: map[string]any{
			"workout_id":     w.ID,
			"exercise_count": len(w.Exercises),
		},
	}, nil
}
