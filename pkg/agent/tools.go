package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/tool"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

const (
	createWorkoutTool = "create_workout"
	modifyWorkoutTool = "modify_workout"
	exerciseInfoTool  = "exercise_info"
)

// toolFor maps an actionable intent to a tool call.
func toolFor(in intent.Intent, wm *memory.WorkingMemory, input string) (string, map[string]any) {
	switch in.Name {
	case intent.DirectModification:
		params := map[string]any{builtin.ParamPlanType: in.Slot(intent.SlotPlanType)}
		if wm.HasCurrentWorkout() {
			params[builtin.ParamTargetWorkoutID] = wm.CurrentWorkout.ID
		}
		return modifyWorkoutTool, params
	case intent.CreateWorkout:
		params := map[string]any{builtin.ParamRequest: input}
		if g := in.Slot(intent.SlotMuscleGroup); g != "" {
			params[builtin.ParamMuscleGroup] = g
		}
		if minutes, ok := in.IntSlot(intent.SlotDuration); ok {
			params[builtin.ParamDuration] = minutes
		}
		if lvl := in.Slot(intent.SlotExperienceLevel); lvl != "" {
			params[builtin.ParamExperienceLevel] = lvl
		}
		return createWorkoutTool, params
	case intent.ExerciseInfo:
		return exerciseInfoTool, map[string]any{builtin.ParamExercise: in.Slot(intent.SlotExercise)}
	}
	return "", nil
}

// runTool executes a tool against a snapshot of working memory and folds
// the result back: success replaces the workout, anything else only records
// the action. A cancelled context records nothing.
func (a *Agent) runTool(ctx context.Context, sess *memory.Session, name string, params map[string]any, o *outcome) {
	wm := sess.Working
	res, err := a.tools.Execute(ctx, tool.Call{
		SessionID: sess.ID,
		Name:      name,
		Params:    params,
		Snapshot:  wm.Snapshot(),
	})
	if ctx.Err() != nil {
		return
	}

	act := memory.Action{ToolName: name, Params: params, At: a.now()}
	var panicErr *tool.PanicError
	switch {
	case errors.Is(err, tool.ErrToolNotFound):
		act.Type = memory.ActionToolExecutionFailed
		act.Error = err.Error()
		o.toolText = UnsupportedText
	case err != nil:
		act.Type = memory.ActionToolExecutionException
		act.Error = err.Error()
		o.toolText = ExceptionText
		fields := []zap.Field{zap.String("session_id", sess.ID), zap.String("tool", name), zap.Error(err)}
		if errors.As(err, &panicErr) {
			a.logger.Error("tool panicked", fields...)
		} else {
			a.logger.Warn("tool raised an error", fields...)
		}
	case res == nil || !res.Success:
		act.Type = memory.ActionToolExecutionFailed
		if res != nil {
			act.Error = res.Error
		}
		o.toolText = failureText(name, act.Error)
	default:
		if res.UpdatedWorkout != nil {
			wm.ReplaceWorkout(res.UpdatedWorkout)
		}
		act.Type = memory.ActionToolExecution
		act.Message = res.Message
		o.toolText = res.Message
	}

	wm.RecordAction(act)
	recorded := act
	o.action = &recorded
	o.result = res
}

func failureText(name, errText string) string {
	if errText == "" {
		return ExceptionText
	}
	if name == modifyWorkoutTool {
		return fmt.Sprintf("I couldn't change your workout: %s", errText)
	}
	return errText
}
