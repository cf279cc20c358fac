package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// muscleGroups maps surface forms to canonical group names. Longer phrases
// are checked first so "upper body" wins over "body".
var muscleGroups = []struct {
	phrase    string
	canonical string
}{
	{"full body", "full body"},
	{"full-body", "full body"},
	{"total body", "full body"},
	{"upper body", "upper body"},
	{"lower body", "lower body"},
	{"shoulders", "shoulders"},
	{"shoulder", "shoulders"},
	{"chest", "chest"},
	{"pecs", "chest"},
	{"back", "back"},
	{"lats", "back"},
	{"legs", "legs"},
	{"leg", "legs"},
	{"quads", "legs"},
	{"hamstrings", "legs"},
	{"glutes", "glutes"},
	{"biceps", "biceps"},
	{"triceps", "triceps"},
	{"arms", "arms"},
	{"arm", "arms"},
	{"core", "core"},
	{"abs", "core"},
	{"cardio", "cardio"},
}

var experienceLevels = map[string]string{
	"beginner":     "beginner",
	"novice":       "beginner",
	"intermediate": "intermediate",
	"advanced":     "advanced",
	"expert":       "advanced",
	"experienced":  "advanced",
}

var (
	durationPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
	experiencePattern = regexp.MustCompile(`\b(beginner|novice|intermediate|advanced|expert|experienced)\b`)
)

func extractWorkoutSlots(normalized string, _ []string) map[string]any {
	slots := map[string]any{}
	if group := MuscleGroup(normalized); group != "" {
		slots[SlotMuscleGroup] = group
	}
	if minutes, ok := DurationMinutes(normalized); ok {
		slots[SlotDuration] = minutes
	}
	if m := experiencePattern.FindStringSubmatch(normalized); m != nil {
		slots[SlotExperienceLevel] = experienceLevels[m[1]]
	}
	return slots
}

// MuscleGroup returns the first canonical muscle group mentioned in s.
func MuscleGroup(s string) string {
	for _, g := range muscleGroups {
		if containsWord(s, g.phrase) {
			return g.canonical
		}
	}
	return ""
}

// DurationMinutes extracts a duration and normalizes it to whole minutes.
func DurationMinutes(s string) (int, bool) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	if strings.HasPrefix(m[2], "h") {
		value *= 60
	}
	return int(value + 0.5), true
}

func containsWord(s, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}
