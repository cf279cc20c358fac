// Package builtin contains the tools the agent ships with.
package builtin

import "github.com/odvcencio/repcoach/pkg/workout"

// ParameterSchema describes the parameters a tool accepts.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single parameter.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// Result is what a tool reports back. Tools never touch session memory;
// every effect travels through this value.
type Result struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message,omitempty"`
	Error            string           `json:"error,omitempty"`
	UpdatedWorkout   *workout.Workout `json:"updated_workout,omitempty"`
	NavigationTarget string           `json:"navigation_target,omitempty"`
	Data             map[string]any   `json:"data,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}
