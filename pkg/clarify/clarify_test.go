package clarify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/workout"
)

func memoryWithWorkout(id string) *memory.WorkingMemory {
	wm := memory.NewWorkingMemory()
	wm.ReplaceWorkout(&workout.Workout{
		ID:        id,
		Name:      "Leg Day",
		Exercises: []workout.Exercise{{Name: "squat", Sets: 3, Reps: 10}},
	})
	return wm
}

func TestBegin_TransitionsToAwaiting(t *testing.T) {
	m := NewManager()
	wm := memoryWithWorkout("w1")
	before := wm.CurrentWorkout.Clone()

	assert.Equal(t, StateNone, m.State(wm))
	c := m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))
	require.NotNil(t, c)

	assert.Equal(t, StateAwaitingAnswer, m.State(wm))
	assert.Equal(t, "w1", wm.PendingClarification.RelatedData.WorkoutID)
	assert.Equal(t, intent.AmbiguousDouble, wm.PendingClarification.OriginalIntent)
	assert.Len(t, wm.PendingClarification.Options, 3)
	assert.Contains(t, c.Question, "Leg Day")
	assert.Equal(t, before, wm.CurrentWorkout)
}

func TestBegin_NoWorkout(t *testing.T) {
	m := NewManager()
	wm := memory.NewWorkingMemory()
	assert.Nil(t, m.Begin(wm, intent.New(intent.AmbiguousDouble, 1)))
	assert.Equal(t, StateNone, m.State(wm))
}

func TestBegin_Supersedes(t *testing.T) {
	m := NewManager()
	wm := memoryWithWorkout("w1")
	m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))
	wm.ClarificationMismatches = 2

	wm.ReplaceWorkout(&workout.Workout{ID: "w2", Name: "Push Day"})
	m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))

	assert.Equal(t, "w2", wm.PendingClarification.RelatedData.WorkoutID)
	assert.Contains(t, wm.PendingClarification.Question, "Push Day")
	assert.Zero(t, wm.ClarificationMismatches)
}

func TestResolve_ByPhrase(t *testing.T) {
	tests := map[string]workout.PlanType{
		"double the sets":        workout.DoubleSets,
		"Double the reps please": workout.DoubleReps,
		"double both":            workout.DoubleBoth,
		"both":                   workout.DoubleBoth,
		"the sets":               workout.DoubleSets,
		"just reps":              workout.DoubleReps,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			m := NewManager()
			wm := memoryWithWorkout("w1")
			m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))

			res := m.Resolve(wm, input)
			require.Equal(t, OutcomeResolved, res.Outcome)
			assert.Equal(t, want, res.Plan.Type)
			assert.Equal(t, "w1", res.Plan.TargetWorkoutID)
			assert.Equal(t, intent.UserProvidedClarification, res.Intent.Name)
			assert.Equal(t, string(want), res.Intent.Slot(intent.SlotChoice))
			assert.Nil(t, wm.PendingClarification)
			assert.Equal(t, intent.UserProvidedClarification, wm.UserIntent.Name)
		})
	}
}

func TestResolve_SetsAndRepsMeansBoth(t *testing.T) {
	for _, input := range []string{
		"double the sets and reps",
		"the reps and sets",
		"both sets and reps",
		"sets and reps please",
	} {
		t.Run(input, func(t *testing.T) {
			m := NewManager()
			wm := memoryWithWorkout("w1")
			m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))

			res := m.Resolve(wm, input)
			require.Equal(t, OutcomeResolved, res.Outcome)
			assert.Equal(t, workout.DoubleBoth, res.Plan.Type)
		})
	}
}

func TestResolve_IndexMatchesTypedText(t *testing.T) {
	m := NewManager()
	for i, opt := range doubleOptions {
		byText := memoryWithWorkout("w1")
		m.Begin(byText, intent.New(intent.AmbiguousDouble, 1))
		textRes := m.Resolve(byText, opt.Text)

		byIndex := memoryWithWorkout("w1")
		m.Begin(byIndex, intent.New(intent.AmbiguousDouble, 1))
		indexRes := m.Resolve(byIndex, string(rune('1'+i)))

		require.Equal(t, OutcomeResolved, indexRes.Outcome)
		assert.Equal(t, textRes.Option, indexRes.Option)
		assert.Equal(t, textRes.Plan, indexRes.Plan)
	}
}

func TestResolve_MismatchLeavesContextUntouched(t *testing.T) {
	m := NewManager()
	wm := memoryWithWorkout("w1")
	m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))
	original := wm.PendingClarification.Clone()

	for _, input := range []string{"banana", "4", "0", "double", "the"} {
		wm.ClarificationMismatches = 0
		res := m.Resolve(wm, input)
		require.Equal(t, OutcomeMismatch, res.Outcome, input)
		assert.Equal(t, original.Question, res.Prompt)
		assert.Equal(t, original, wm.PendingClarification)
		assert.Equal(t, intent.ClarificationMismatch, wm.UserIntent.Name)
	}
}

func TestResolve_AbandonsAfterRetryCap(t *testing.T) {
	m := NewManager(WithMaxRetries(2))
	wm := memoryWithWorkout("w1")
	m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))

	assert.Equal(t, OutcomeMismatch, m.Resolve(wm, "what").Outcome)
	assert.Equal(t, OutcomeMismatch, m.Resolve(wm, "huh").Outcome)
	res := m.Resolve(wm, "no idea")
	assert.Equal(t, OutcomeAbandoned, res.Outcome)
	assert.Equal(t, AbandonMessage, res.Prompt)
	assert.Equal(t, StateNone, m.State(wm))
}

func TestResolve_UnboundedRetries(t *testing.T) {
	m := NewManager(WithMaxRetries(0))
	wm := memoryWithWorkout("w1")
	m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))
	for i := 0; i < 20; i++ {
		require.Equal(t, OutcomeMismatch, m.Resolve(wm, "nope").Outcome)
	}
}

func TestResolve_NotPending(t *testing.T) {
	res := NewManager().Resolve(memory.NewWorkingMemory(), "1")
	assert.Equal(t, OutcomeNotPending, res.Outcome)
}

func TestClear(t *testing.T) {
	m := NewManager()
	wm := memoryWithWorkout("w1")
	assert.False(t, m.Clear(wm))
	m.Begin(wm, intent.New(intent.AmbiguousDouble, 1))
	assert.True(t, m.Clear(wm))
	assert.Equal(t, StateNone, m.State(wm))
	assert.Equal(t, "AWAITING_ANSWER", StateAwaitingAnswer.String())
}
