package memory

import (
	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// Snapshot is a read-only view of working memory taken before a tool call.
// Every accessor returns a fresh copy, so callers cannot reach back into the
// session.
type Snapshot struct {
	workout       *workout.Workout
	lastAction    *Action
	intent        *intent.Intent
	clarification *Clarification
}

// NewSnapshot builds a snapshot around a workout. Mostly useful in tests and
// for stateless entry points.
func NewSnapshot(w *workout.Workout) Snapshot {
	return Snapshot{workout: w.Clone()}
}

// CurrentWorkout returns a copy of the active workout, or nil.
func (s Snapshot) CurrentWorkout() *workout.Workout {
	return s.workout.Clone()
}

// HasCurrentWorkout reports whether a workout was active.
func (s Snapshot) HasCurrentWorkout() bool {
	return s.workout != nil
}

// LastAction returns a copy of the last recorded action, or nil.
func (s Snapshot) LastAction() *Action {
	return s.lastAction.clone()
}

// UserIntent returns a copy of the last detected intent.
func (s Snapshot) UserIntent() (intent.Intent, bool) {
	if s.intent == nil {
		return intent.Intent{}, false
	}
	return s.intent.Clone(), true
}

// PendingClarification returns a copy of the pending clarification, or nil.
func (s Snapshot) PendingClarification() *Clarification {
	return s.clarification.Clone()
}
