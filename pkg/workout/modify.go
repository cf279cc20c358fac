package workout

import (
	"errors"
	"fmt"
	"strings"
)

// PlanType names a supported modification.
type PlanType string

const (
	DoubleSets PlanType = "DOUBLE_SETS"
	DoubleReps PlanType = "DOUBLE_REPS"
	DoubleBoth PlanType = "DOUBLE_BOTH"
)

// PlanTypes lists the known plan types in presentation order.
var PlanTypes = []PlanType{DoubleSets, DoubleReps, DoubleBoth}

// Valid reports whether p is one of the known plan types.
func (p PlanType) Valid() bool {
	switch p {
	case DoubleSets, DoubleReps, DoubleBoth:
		return true
	}
	return false
}

// ParsePlanType accepts a plan type in any case, with spaces or dashes in
// place of underscores.
func ParsePlanType(s string) (PlanType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	p := PlanType(norm)
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan type %q", s)
	}
	return p, nil
}

// ModificationPlan describes how to transform the current workout.
type ModificationPlan struct {
	Type            PlanType `json:"type"`
	TargetWorkoutID string   `json:"target_workout_id"`
}

var (
	ErrNoPlan    = errors.New("No modification plan provided")
	ErrNoWorkout = errors.New("No current workout in memory to modify")
	ErrTooLarge  = errors.New("modification exceeds the per-exercise limit")
)

// Per-exercise ceilings a modification may not exceed.
const (
	MaxSets = 100
	MaxReps = 1000
)

// IDMismatchError is returned when a plan targets a workout other than the
// current one.
type IDMismatchError struct {
	PlanWorkoutID    string
	CurrentWorkoutID string
}

func (e *IDMismatchError) Error() string {
	return fmt.Sprintf("workout id mismatch: plan targets %q but current workout is %q", e.PlanWorkoutID, e.CurrentWorkoutID)
}

// Modify applies plan to a deep copy of current and returns the copy along
// with a confirmation message. current is never mutated. Any per-exercise
// error fails the whole modification.
func Modify(current *Workout, plan *ModificationPlan) (*Workout, string, error) {
	if plan == nil {
		return nil, "", ErrNoPlan
	}
	if current == nil {
		return nil, "", ErrNoWorkout
	}
	if plan.TargetWorkoutID != current.ID {
		return nil, "", &IDMismatchError{PlanWorkoutID: plan.TargetWorkoutID, CurrentWorkoutID: current.ID}
	}

	modified := current.Clone()
	var errs []error
	for i := range modified.Exercises {
		ex := &modified.Exercises[i]
		switch plan.Type {
		case DoubleSets:
			ex.Sets *= 2
		case DoubleReps:
			ex.Reps *= 2
		case DoubleBoth:
			ex.Sets *= 2
			ex.Reps *= 2
		default:
			errs = append(errs, fmt.Errorf("exercise %q: unsupported plan type %q", ex.Name, plan.Type))
			continue
		}
		if ex.Sets > MaxSets || ex.Reps > MaxReps {
			errs = append(errs, fmt.Errorf("exercise %q: %w (%d sets, %d reps; max %d sets, %d reps)",
				ex.Name, ErrTooLarge, ex.Sets, ex.Reps, MaxSets, MaxReps))
		}
	}
	if len(errs) > 0 {
		return nil, "", errors.Join(errs...)
	}
	if !plan.Type.Valid() {
		// Workouts without exercises still reject unknown plans.
		return nil, "", fmt.Errorf("unsupported plan type %q", plan.Type)
	}

	return modified, fmt.Sprintf("Applied %s to %q. Here is your updated workout.", plan.Type, displayName(modified)), nil
}

func displayName(w *Workout) string {
	if strings.TrimSpace(w.Name) != "" {
		return w.Name
	}
	return w.ID
}
