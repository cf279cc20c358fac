package builtin

import (
	"context"

	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// Parameter keys understood by ModifyWorkoutTool.
const (
	ParamPlanType        = "plan_type"
	ParamTargetWorkoutID = "target_workout_id"
)

// ModifyWorkoutTool applies a ModificationPlan to the current workout.
type ModifyWorkoutTool struct{}

func (t *ModifyWorkoutTool) Name() string {
	return "modify_workout"
}

func (t *ModifyWorkoutTool) Description() string {
	return "Double the sets, reps, or both for every exercise in the current workout."
}

func (t *ModifyWorkoutTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			ParamPlanType: {
				Type:        "string",
				Description: "Which fields to double",
				Enum:        []string{string(workout.DoubleSets), string(workout.DoubleReps), string(workout.DoubleBoth)},
			},
			ParamTargetWorkoutID: {
				Type:        "string",
				Description: "Id of the workout the plan was made for; defaults to the current workout",
			},
		},
		Required: []string{ParamPlanType},
	}
}

// PlanParams encodes a plan as tool parameters.
func PlanParams(plan *workout.ModificationPlan) map[string]any {
	if plan == nil {
		return map[string]any{}
	}
	return map[string]any{
		ParamPlanType:        string(plan.Type),
		ParamTargetWorkoutID: plan.TargetWorkoutID,
	}
}

func (t *ModifyWorkoutTool) Execute(ctx context.Context, params map[string]any, snap memory.Snapshot) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current := snap.CurrentWorkout()
	plan := planFromParams(params, current)

	updated, msg, err := workout.Modify(current, plan)
	if err != nil {
		return Failure(err.Error()), nil
	}
	return &Result{
		Success:          true,
		Message:          msg,
		UpdatedWorkout:   updated,
		NavigationTarget: "workout/" + updated.ID,
		Data: map[string]any{
			"plan_type":  string(plan.Type),
			"workout_id": updated.ID,
			"total_sets": updated.TotalSets(),
		},
	}, nil
}

// planFromParams returns nil when no plan type was supplied. A missing
// target id defaults to the current workout so stateless callers can omit
// it.
func planFromParams(params map[string]any, current *workout.Workout) *workout.ModificationPlan {
	raw := stringParam(params, ParamPlanType)
	if raw == "" {
		return nil
	}
	planType, err := workout.ParsePlanType(raw)
	if err != nil {
		planType = workout.PlanType(raw)
	}
	target := stringParam(params, ParamTargetWorkoutID)
	if _, ok := params[ParamTargetWorkoutID]; !ok && current != nil {
		target = current.ID
	}
	return &workout.ModificationPlan{Type: planType, TargetWorkoutID: target}
}
