// Package clarify implements the disambiguation state machine used when a
// request is ambiguous: ask a question, then interpret the next turn as an
// answer.
package clarify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// State is the clarification state of a session.
type State int

const (
	StateNone State = iota
	StateAwaitingAnswer
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateAwaitingAnswer:
		return "AWAITING_ANSWER"
	}
	return "UNKNOWN"
}

// DefaultMaxRetries is how many mismatched answers re-prompt before the
// clarification is abandoned.
const DefaultMaxRetries = 3

// AbandonMessage is returned when the retry cap is exceeded.
const AbandonMessage = "I still couldn't tell which option you meant, so I've left your workout as it is. Say \"double it\" whenever you want to try again."

var doubleOptions = []memory.Option{
	{Text: "double the sets", Value: string(workout.DoubleSets)},
	{Text: "double the reps", Value: string(workout.DoubleReps)},
	{Text: "double both", Value: string(workout.DoubleBoth)},
}

// aliases are single keywords that identify an option when no phrase or
// index matched. A keyword must identify exactly one option.
var aliases = map[string][]string{
	string(workout.DoubleSets): {"sets", "set"},
	string(workout.DoubleReps): {"reps", "rep", "repetitions"},
	string(workout.DoubleBoth): {"both", "everything", "all of it"},
}

// minFragment is the shortest answer matched as a fragment of option text.
const minFragment = 3

// Outcome classifies a resolution attempt.
type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeMismatch
	OutcomeAbandoned
	OutcomeNotPending
)

// Resolution is the result of interpreting a turn as an answer.
type Resolution struct {
	Outcome Outcome
	Intent  intent.Intent
	Option  memory.Option
	Plan    *workout.ModificationPlan
	// Prompt is the text to send back: the original question on mismatch,
	// or the abandon message.
	Prompt string
}

// Manager drives the clarification state machine over working memory. It
// holds no per-session state.
type Manager struct {
	maxRetries int
	now        func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxRetries caps consecutive mismatches; n <= 0 never abandons.
func WithMaxRetries(n int) ManagerOption {
	return func(m *Manager) { m.maxRetries = n }
}

// NewManager returns a manager with the default retry cap.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{maxRetries: DefaultMaxRetries, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports whether wm is awaiting an answer.
func (m *Manager) State(wm *memory.WorkingMemory) State {
	if wm != nil && wm.PendingClarification != nil {
		return StateAwaitingAnswer
	}
	return StateNone
}

// Begin asks how to apply an ambiguous doubling request to the current
// workout. Any pending clarification is replaced. It returns nil when there
// is no workout to ask about.
func (m *Manager) Begin(wm *memory.WorkingMemory, original intent.Intent) *memory.Clarification {
	if !wm.HasCurrentWorkout() {
		return nil
	}
	w := wm.CurrentWorkout
	c := &memory.Clarification{
		OriginalIntent: original.Name,
		Question:       questionFor(w),
		Options:        append([]memory.Option(nil), doubleOptions...),
		RelatedData:    memory.RelatedData{WorkoutID: w.ID},
		AskedAt:        m.now(),
	}
	wm.SetPendingClarification(c)
	return c.Clone()
}

// Resolve interprets input as an answer to the pending clarification.
func (m *Manager) Resolve(wm *memory.WorkingMemory, input string) Resolution {
	pending := wm.PendingClarification
	if pending == nil {
		return Resolution{Outcome: OutcomeNotPending}
	}

	if idx, ok := Match(pending.Options, input); ok {
		opt := pending.Options[idx]
		plan := &workout.ModificationPlan{
			Type:            workout.PlanType(opt.Value),
			TargetWorkoutID: pending.RelatedData.WorkoutID,
		}
		in := intent.New(intent.UserProvidedClarification, 1.0).
			WithSlot(intent.SlotChoice, opt.Value).
			WithSlot(intent.SlotPlanType, opt.Value)
		wm.RecordIntent(in)
		wm.ClearPendingClarification()
		return Resolution{Outcome: OutcomeResolved, Intent: in, Option: opt, Plan: plan}
	}

	in := intent.New(intent.ClarificationMismatch, 1.0).WithSlot(intent.SlotRawInput, input)
	wm.RecordIntent(in)
	wm.ClarificationMismatches++
	if m.maxRetries > 0 && wm.ClarificationMismatches > m.maxRetries {
		wm.ClearPendingClarification()
		return Resolution{Outcome: OutcomeAbandoned, Intent: in, Prompt: AbandonMessage}
	}
	return Resolution{Outcome: OutcomeMismatch, Intent: in, Prompt: pending.Question}
}

// Clear abandons any pending clarification, e.g. on a topic change.
func (m *Manager) Clear(wm *memory.WorkingMemory) bool {
	if wm.PendingClarification == nil {
		return false
	}
	wm.ClearPendingClarification()
	return true
}

// Match finds the option an answer refers to: by phrase first, then by
// 1-based index, then by a keyword that names exactly one option.
func Match(options []memory.Option, input string) (int, bool) {
	answer := intent.Normalize(input)
	if answer == "" {
		return 0, false
	}

	for i, opt := range options {
		if answer == strings.ToLower(opt.Text) {
			return i, true
		}
	}
	if namesSetsAndReps(answer) {
		for i, opt := range options {
			if opt.Value == string(workout.DoubleBoth) {
				return i, true
			}
		}
	}
	for i, opt := range options {
		if strings.Contains(answer, strings.ToLower(opt.Text)) {
			return i, true
		}
	}
	if len(answer) >= minFragment {
		if idx, ok := uniqueIndex(options, func(opt memory.Option) bool {
			return strings.Contains(strings.ToLower(opt.Text), answer)
		}); ok {
			return idx, true
		}
	}

	if n, err := strconv.Atoi(strings.TrimPrefix(answer, "#")); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
		return 0, false
	}

	words := strings.Fields(answer)
	return uniqueIndex(options, func(opt memory.Option) bool {
		for _, alias := range aliases[opt.Value] {
			if strings.Contains(alias, " ") {
				if strings.Contains(answer, alias) {
					return true
				}
				continue
			}
			for _, w := range words {
				if w == alias {
					return true
				}
			}
		}
		return false
	})
}

// namesSetsAndReps reports whether an answer asks for sets and reps
// together, as in "double the sets and reps".
func namesSetsAndReps(answer string) bool {
	var sets, reps bool
	for _, w := range strings.Fields(answer) {
		for _, alias := range aliases[string(workout.DoubleSets)] {
			sets = sets || w == alias
		}
		for _, alias := range aliases[string(workout.DoubleReps)] {
			reps = reps || w == alias
		}
	}
	return sets && reps
}

func uniqueIndex(options []memory.Option, pred func(memory.Option) bool) (int, bool) {
	found := -1
	for i, opt := range options {
		if !pred(opt) {
			continue
		}
		if found >= 0 {
			return 0, false
		}
		found = i
	}
	return found, found >= 0
}

func questionFor(w *workout.Workout) string {
	name := strings.TrimSpace(w.Name)
	if name == "" {
		name = "your current workout"
	} else {
		name = fmt.Sprintf("%q", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "How should I double %s?", name)
	for i, opt := range doubleOptions {
		fmt.Fprintf(&b, " %d) %s", i+1, opt.Text)
	}
	return b.String()
}
