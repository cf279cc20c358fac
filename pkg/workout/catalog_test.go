package workout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	for _, name := range []string{"squat", "Squats", "a back squat", "Push-Up", "pushups", "the bench"} {
		_, ok := c.Lookup(name)
		assert.True(t, ok, name)
	}
	e, ok := c.Lookup("military press")
	assert.True(t, ok)
	assert.Equal(t, "overhead press", e.Name)

	_, ok = c.Lookup("underwater basket weaving")
	assert.False(t, ok)
	_, ok = c.Lookup("  ")
	assert.False(t, ok)
}

func TestCatalogForMuscleGroup(t *testing.T) {
	c := DefaultCatalog()
	chest := c.ForMuscleGroup("Chest")
	assert.NotEmpty(t, chest)
	for _, e := range chest {
		assert.Contains(t, e.MuscleGroups, "chest")
	}
	assert.Len(t, c.ForMuscleGroup("full body"), c.Len())
	assert.Empty(t, c.ForMuscleGroup("eyebrows"))
}

func TestRequestNormalize(t *testing.T) {
	got := Request{}.Normalize()
	assert.Equal(t, Request{MuscleGroup: DefaultMuscleGroup, DurationMinutes: DefaultDurationMinutes, ExperienceLevel: DefaultLevel}, got)

	got = Request{MuscleGroup: "legs", DurationMinutes: 500, ExperienceLevel: "advanced"}.Normalize()
	assert.Equal(t, MaxDurationMinutes, got.DurationMinutes)
	assert.Equal(t, "advanced", got.ExperienceLevel)

	got = Request{DurationMinutes: 3, ExperienceLevel: "guru"}.Normalize()
	assert.Equal(t, MinDurationMinutes, got.DurationMinutes)
	assert.Equal(t, DefaultLevel, got.ExperienceLevel)
}
