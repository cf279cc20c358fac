package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	hasWorkout bool
	recorded   []Intent
}

func (f *fakeState) HasCurrentWorkout() bool { return f.hasWorkout }
func (f *fakeState) RecordIntent(in Intent)  { f.recorded = append(f.recorded, in) }

func TestDetect_DoubleIt(t *testing.T) {
	c := NewClassifier()

	with := &fakeState{hasWorkout: true}
	got := c.Detect("  Double IT ", with)
	assert.Equal(t, AmbiguousDouble, got.Name)
	assert.Equal(t, 1.0, got.Confidence)

	without := &fakeState{}
	got = c.Detect("double it!", without)
	assert.Equal(t, NoWorkoutToDouble, got.Name)
}

func TestDetect_AlwaysRecordsIntent(t *testing.T) {
	c := NewClassifier()
	st := &fakeState{}
	for _, in := range []string{"hello", "double it", "asdf qwerty"} {
		got := c.Detect(in, st)
		require.NotEmpty(t, st.recorded)
		assert.Equal(t, got.Name, st.recorded[len(st.recorded)-1].Name)
	}
	assert.Len(t, st.recorded, 3)
}

func TestDetect_RecordedIntentIsIndependentCopy(t *testing.T) {
	c := NewClassifier()
	st := &fakeState{}
	got := c.Detect("create a 30 minute leg workout", st)
	got.Slots[SlotMuscleGroup] = "chest"
	assert.Equal(t, "legs", st.recorded[0].Slot(SlotMuscleGroup))
}

func TestDetect_Table(t *testing.T) {
	tests := []struct {
		input      string
		hasWorkout bool
		want       string
		slots      map[string]any
	}{
		{input: "hi", want: Greeting},
		{input: "Good morning coach", want: Greeting},
		{input: "bye for now", want: Farewell},
		{input: "Thanks a lot!", want: Thanks},
		{input: "help", want: Help},
		{input: "what can you do?", want: Help},
		{input: "What is a deadlift?", want: ExerciseInfo, slots: map[string]any{SlotExercise: "deadlift"}},
		{input: "tell me about the bench press", want: ExerciseInfo, slots: map[string]any{SlotExercise: "bench press"}},
		{input: "how do I perform a romanian deadlift", want: ExerciseInfo, slots: map[string]any{SlotExercise: "romanian deadlift"}},
		{
			input: "Create a 45 min chest workout for a beginner",
			want:  CreateWorkout,
			slots: map[string]any{SlotMuscleGroup: "chest", SlotDuration: 45, SlotExperienceLevel: "beginner"},
		},
		{
			input: "make me an advanced full body routine for 1.5 hr",
			want:  CreateWorkout,
			slots: map[string]any{SlotMuscleGroup: "full body", SlotDuration: 90, SlotExperienceLevel: "advanced"},
		},
		{input: "I need a workout", want: CreateWorkout, slots: map[string]any{}},
		{input: "double the sets", hasWorkout: true, want: DirectModification, slots: map[string]any{SlotPlanType: "DOUBLE_SETS"}},
		{input: "double reps please", hasWorkout: true, want: DirectModification, slots: map[string]any{SlotPlanType: "DOUBLE_REPS"}},
		{input: "double both", hasWorkout: true, want: DirectModification, slots: map[string]any{SlotPlanType: "DOUBLE_BOTH"}},
		{input: "double the sets", want: NoWorkoutToDouble},
	}
	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := c.Detect(tt.input, &fakeState{hasWorkout: tt.hasWorkout})
			assert.Equal(t, tt.want, got.Name)
			assert.Greater(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
			if tt.slots != nil {
				assert.Equal(t, tt.slots, got.Slots)
			}
		})
	}
}

func TestDetect_UnknownFallback(t *testing.T) {
	c := NewClassifier()
	got := c.Detect("Purple Monkey Dishwasher", &fakeState{})
	assert.Equal(t, Unknown, got.Name)
	assert.Equal(t, UnknownConfidence, got.Confidence)
	assert.Equal(t, "Purple Monkey Dishwasher", got.Slot(SlotRawInput))
}

func TestDetect_NilState(t *testing.T) {
	got := NewClassifier().Detect("double it", nil)
	assert.Equal(t, NoWorkoutToDouble, got.Name)
}

func TestDurationMinutes(t *testing.T) {
	for in, want := range map[string]int{
		"30 minutes": 30,
		"20min":      20,
		"1 hr":       60,
		"2 hours":    120,
		"0.5h":       30,
		"15 m":       15,
	} {
		got, ok := DurationMinutes(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := DurationMinutes("forever")
	assert.False(t, ok)
}

func TestMuscleGroup_WordBoundaries(t *testing.T) {
	assert.Equal(t, "", MuscleGroup("backpack"))
	assert.Equal(t, "back", MuscleGroup("my back hurts"))
	assert.Equal(t, "upper body", MuscleGroup("an upper body day"))
	assert.Equal(t, "core", MuscleGroup("abs and stuff"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "double it", Normalize("  DOUBLE   it!! "))
	assert.Equal(t, "fine", Normalize("ﬁne"))
}
