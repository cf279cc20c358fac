// Package intent turns free-text user input into a structured Intent using
// deterministic pattern matching and slot extraction.
package intent

import "strconv"

// Known intent names.
const (
	AmbiguousDouble           = "AMBIGUOUS_DOUBLE_REQUEST"
	NoWorkoutToDouble         = "NO_WORKOUT_TO_DOUBLE"
	UserProvidedClarification = "USER_PROVIDED_CLARIFICATION"
	ClarificationMismatch     = "CLARIFICATION_MISMATCH"
	Unknown                   = "UNKNOWN_INTENT"
	Greeting                  = "GREETING"
	Farewell                  = "FAREWELL"
	Thanks                    = "THANKS"
	Help                      = "HELP"
	ExerciseInfo              = "EXERCISE_INFO_REQUEST"
	CreateWorkout             = "CREATE_WORKOUT_REQUEST"
	DirectModification        = "DIRECT_MODIFICATION_REQUEST"
)

// Slot names.
const (
	SlotRawInput        = "raw_input"
	SlotExercise        = "exercise"
	SlotMuscleGroup     = "muscle_group"
	SlotDuration        = "duration"
	SlotExperienceLevel = "experience_level"
	SlotPlanType        = "plan_type"
	SlotChoice          = "choice"
)

// UnknownConfidence is the fixed confidence of the fallback intent.
const UnknownConfidence = 0.5

// Intent is the classifier's interpretation of one utterance.
type Intent struct {
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Slots      map[string]any `json:"slots,omitempty"`
}

// New builds an intent with an empty slot map.
func New(name string, confidence float64) Intent {
	return Intent{Name: name, Confidence: confidence, Slots: map[string]any{}}
}

// WithSlot returns a copy of in with slot set.
func (in Intent) WithSlot(name string, value any) Intent {
	slots := make(map[string]any, len(in.Slots)+1)
	for k, v := range in.Slots {
		slots[k] = v
	}
	slots[name] = value
	in.Slots = slots
	return in
}

// Slot returns a string slot, or "" when missing.
func (in Intent) Slot(name string) string {
	switch v := in.Slots[name].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// IntSlot returns an integer slot.
func (in Intent) IntSlot(name string) (int, bool) {
	switch v := in.Slots[name].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Clone copies the slot map so the result can be stored independently.
func (in Intent) Clone() Intent {
	if in.Slots == nil {
		return in
	}
	slots := make(map[string]any, len(in.Slots))
	for k, v := range in.Slots {
		slots[k] = v
	}
	in.Slots = slots
	return in
}

// HighPriority reports whether the intent interrupts a pending clarification.
func (in Intent) HighPriority() bool {
	switch in.Name {
	case Greeting, Farewell, Thanks, Help:
		return true
	}
	return false
}
