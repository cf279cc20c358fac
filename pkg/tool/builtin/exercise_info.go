package builtin

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// ParamExercise names the exercise to look up.
const ParamExercise = "exercise"

// ErrExerciseNotFoundPrefix starts the error of a catalog miss so callers
// can fall back to another source.
const ErrExerciseNotFoundPrefix = "exercise not found: "

var title = cases.Title(language.English)

// ExerciseInfoTool answers questions about known exercises.
type ExerciseInfoTool struct {
	Catalog *workout.Catalog
}

func (t *ExerciseInfoTool) Name() string {
	return "exercise_info"
}

func (t *ExerciseInfoTool) Description() string {
	return "Describe how to perform an exercise and which muscles it trains."
}

func (t *ExerciseInfoTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]PropertySchema{
			ParamExercise: {Type: "string", Description: "Exercise name"},
		},
		Required: []string{ParamExercise},
	}
}

func (t *ExerciseInfoTool) Execute(_ context.Context, params map[string]any, _ memory.Snapshot) (*Result, error) {
	name := stringParam(params, ParamExercise)
	if name == "" {
		return Failure("exercise name is required"), nil
	}
	catalog := t.Catalog
	if catalog == nil {
		catalog = workout.DefaultCatalog()
	}
	entry, ok := catalog.Lookup(name)
	if !ok {
		return Failure(ErrExerciseNotFoundPrefix + name), nil
	}
	return &Result{
		Success:          true,
		Message:          formatEntry(entry),
		NavigationTarget: "exercise/" + strings.ReplaceAll(entry.Name, " ", "-"),
		Data: map[string]any{
			"name":          entry.Name,
			"muscle_groups": entry.MuscleGroups,
			"equipment":     entry.Equipment,
		},
	}, nil
}

// IsNotFound reports whether r is a catalog miss.
func IsNotFound(r *Result) bool {
	return r != nil && !r.Success && strings.HasPrefix(r.Error, ErrExerciseNotFoundPrefix)
}

func formatEntry(e workout.CatalogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", title.String(e.Name), e.Description)
	if len(e.MuscleGroups) > 0 {
		fmt.Fprintf(&b, " It mainly works your %s.", strings.Join(e.MuscleGroups, ", "))
	}
	if e.DefaultSets > 0 && e.DefaultReps > 0 {
		fmt.Fprintf(&b, " A good starting point is %d sets of %d.", e.DefaultSets, e.DefaultReps)
	}
	return b.String()
}
