// Package memory holds per-session conversational state: working memory for
// the live turn and an episodic log of past turns.
package memory

import (
	"time"

	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// ActionType tags the most recent effect recorded in working memory.
type ActionType string

const (
	ActionToolExecution          ActionType = "TOOL_EXECUTION"
	ActionToolExecutionFailed    ActionType = "TOOL_EXECUTION_FAILED"
	ActionToolExecutionException ActionType = "TOOL_EXECUTION_EXCEPTION"
)

// Action records a tool invocation and its outcome.
type Action struct {
	Type     ActionType     `json:"type"`
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params,omitempty"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	At       time.Time      `json:"at"`
}

func (a *Action) clone() *Action {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Params = cloneParams(a.Params)
	return &cp
}

// Option is one selectable answer to a clarification question.
type Option struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// RelatedData ties a clarification to the object it is about.
type RelatedData struct {
	WorkoutID string `json:"workout_id"`
}

// Clarification records a question the agent is waiting on.
type Clarification struct {
	OriginalIntent string      `json:"original_intent"`
	Question       string      `json:"question"`
	Options        []Option    `json:"options"`
	RelatedData    RelatedData `json:"related_data"`
	AskedAt        time.Time   `json:"asked_at"`
}

// Clone returns a deep copy.
func (c *Clarification) Clone() *Clarification {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Options = append([]Option(nil), c.Options...)
	return &cp
}

// WorkingMemory is the mutable per-session state. It is not safe for
// concurrent use; callers hold the owning Session's lock.
type WorkingMemory struct {
	CurrentWorkout          *workout.Workout `json:"current_workout,omitempty"`
	LastAction              *Action          `json:"last_action,omitempty"`
	UserIntent              *intent.Intent   `json:"user_intent,omitempty"`
	PendingClarification    *Clarification   `json:"pending_clarification,omitempty"`
	ClarificationMismatches int              `json:"clarification_mismatches,omitempty"`
}

// NewWorkingMemory returns empty working memory.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{}
}

// HasCurrentWorkout reports whether a workout is active.
func (w *WorkingMemory) HasCurrentWorkout() bool {
	return w != nil && w.CurrentWorkout != nil
}

// RecordIntent stores the most recently detected intent.
func (w *WorkingMemory) RecordIntent(in intent.Intent) {
	in = in.Clone()
	w.UserIntent = &in
}

// RecordAction stores the most recent tool effect.
func (w *WorkingMemory) RecordAction(a Action) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	w.LastAction = a.clone()
}

// SetPendingClarification replaces any pending clarification and resets the
// mismatch counter.
func (w *WorkingMemory) SetPendingClarification(c *Clarification) {
	w.PendingClarification = c
	w.ClarificationMismatches = 0
}

// ClearPendingClarification drops the pending clarification, if any.
func (w *WorkingMemory) ClearPendingClarification() {
	w.PendingClarification = nil
	w.ClarificationMismatches = 0
}

// ReplaceWorkout swaps the active workout wholesale.
func (w *WorkingMemory) ReplaceWorkout(next *workout.Workout) {
	w.CurrentWorkout = next.Clone()
}

// Snapshot returns a deep, read-only copy for handing to tools.
func (w *WorkingMemory) Snapshot() Snapshot {
	if w == nil {
		return Snapshot{}
	}
	s := Snapshot{
		workout:       w.CurrentWorkout.Clone(),
		lastAction:    w.LastAction.clone(),
		clarification: w.PendingClarification.Clone(),
	}
	if w.UserIntent != nil {
		in := w.UserIntent.Clone()
		s.intent = &in
	}
	return s
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
