// Package workout defines workout plans and the pure modification engine that
// rewrites them.
package workout

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is a single movement within a workout.
type Exercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        int    `json:"reps"`
	RestSeconds int    `json:"rest_seconds,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Workout is the mutable domain object the agent operates on.
type Workout struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	MuscleGroup     string     `json:"muscle_group,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	ExperienceLevel string     `json:"experience_level,omitempty"`
	Exercises       []Exercise `json:"exercises"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewID returns a fresh workout identifier.
func NewID() string {
	return "w_" + uuid.NewString()
}

// Clone returns a deep copy. A nil workout clones to nil.
func (w *Workout) Clone() *Workout {
	if w == nil {
		return nil
	}
	cp := *w
	if w.Exercises != nil {
		cp.Exercises = make([]Exercise, len(w.Exercises))
		copy(cp.Exercises, w.Exercises)
	}
	return &cp
}

// TotalSets sums the set count across all exercises.
func (w *Workout) TotalSets() int {
	if w == nil {
		return 0
	}
	total := 0
	for _, ex := range w.Exercises {
		total += ex.Sets
	}
	return total
}
