package workout

// Levels are the accepted experience levels.
var Levels = []string{"beginner", "intermediate", "advanced"}

// Duration bounds for generated workouts, in minutes.
const (
	MinDurationMinutes     = 10
	MaxDurationMinutes     = 180
	DefaultDurationMinutes = 45
	DefaultMuscleGroup     = "full body"
	DefaultLevel           = "beginner"
)

// Request carries what the user asked for when creating a workout. Empty
// fields are filled in by the generator.
type Request struct {
	Text            string `json:"text"`
	MuscleGroup     string `json:"muscle_group,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	ExperienceLevel string `json:"experience_level,omitempty"`
	Equipment       string `json:"equipment,omitempty"`
}

// Normalize clamps the duration and fills defaults for missing fields.
func (r Request) Normalize() Request {
	if r.MuscleGroup == "" {
		r.MuscleGroup = DefaultMuscleGroup
	}
	switch {
	case r.DurationMinutes <= 0:
		r.DurationMinutes = DefaultDurationMinutes
	case r.DurationMinutes < MinDurationMinutes:
		r.DurationMinutes = MinDurationMinutes
	case r.DurationMinutes > MaxDurationMinutes:
		r.DurationMinutes = MaxDurationMinutes
	}
	valid := false
	for _, l := range Levels {
		if r.ExperienceLevel == l {
			valid = true
			break
		}
	}
	if !valid {
		r.ExperienceLevel = DefaultLevel
	}
	return r
}
