package workout

import (
	"sort"
	"strings"
)

// CatalogEntry describes a known exercise.
type CatalogEntry struct {
	Name         string   `json:"name"`
	Aliases      []string `json:"aliases,omitempty"`
	MuscleGroups []string `json:"muscle_groups"`
	Equipment    string   `json:"equipment,omitempty"`
	Description  string   `json:"description"`
	DefaultSets  int      `json:"default_sets"`
	DefaultReps  int      `json:"default_reps"`
}

// Catalog is a read-only exercise lookup table.
type Catalog struct {
	entries []CatalogEntry
	index   map[string]int
}

// NewCatalog builds a catalog. Later entries win on name or alias collision.
func NewCatalog(entries []CatalogEntry) *Catalog {
	c := &Catalog{
		entries: make([]CatalogEntry, len(entries)),
		index:   make(map[string]int, len(entries)*2),
	}
	copy(c.entries, entries)
	for i, e := range c.entries {
		c.index[normalizeName(e.Name)] = i
		for _, alias := range e.Aliases {
			c.index[normalizeName(alias)] = i
		}
	}
	return c
}

// DefaultCatalog returns the built-in exercise catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultEntries)
}

// Lookup finds an exercise by name or alias. Plural and article variations
// ("a squat", "squats") resolve to the same entry.
func (c *Catalog) Lookup(name string) (CatalogEntry, bool) {
	if c == nil {
		return CatalogEntry{}, false
	}
	key := normalizeName(name)
	if key == "" {
		return CatalogEntry{}, false
	}
	for _, candidate := range []string{key, strings.TrimSuffix(key, "s"), strings.TrimSuffix(key, "es")} {
		if i, ok := c.index[candidate]; ok {
			return c.entries[i], true
		}
	}
	return CatalogEntry{}, false
}

// ForMuscleGroup returns entries that train group, sorted by name. "full
// body" matches everything.
func (c *Catalog) ForMuscleGroup(group string) []CatalogEntry {
	if c == nil {
		return nil
	}
	group = normalizeName(group)
	var out []CatalogEntry
	for _, e := range c.entries {
		if group == "" || group == "full body" {
			out = append(out, e)
			continue
		}
		for _, g := range e.MuscleGroups {
			if g == group {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, article := range []string{"a ", "an ", "the "} {
		s = strings.TrimPrefix(s, article)
	}
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

var defaultEntries = []CatalogEntry{
	{
		Name:         "squat",
		Aliases:      []string{"back squat", "barbell squat"},
		MuscleGroups: []string{"legs", "glutes", "lower body"},
		Equipment:    "barbell",
		Description:  "Stand with the bar across your upper back, brace, sit your hips down and back until thighs are parallel, then drive up through your mid-foot.",
		DefaultSets:  4,
		DefaultReps:  8,
	},
	{
		Name:         "deadlift",
		Aliases:      []string{"conventional deadlift"},
		MuscleGroups: []string{"back", "legs", "glutes", "lower body"},
		Equipment:    "barbell",
		Description:  "Hinge at the hips with a flat back, grip the bar just outside your legs, and stand up by pushing the floor away while keeping the bar close.",
		DefaultSets:  3,
		DefaultReps:  5,
	},
	{
		Name:         "bench press",
		Aliases:      []string{"bench", "barbell bench press"},
		MuscleGroups: []string{"chest", "triceps", "shoulders", "upper body"},
		Equipment:    "barbell",
		Description:  "Lie on a flat bench, lower the bar under control to mid-chest, then press it back up until your arms are straight.",
		DefaultSets:  4,
		DefaultReps:  8,
	},
	{
		Name:         "push up",
		Aliases:      []string{"pushup", "press up"},
		MuscleGroups: []string{"chest", "triceps", "core", "upper body"},
		Equipment:    "bodyweight",
		Description:  "From a high plank, lower your chest to just above the floor with elbows at about 45 degrees, then push back up keeping your body in a straight line.",
		DefaultSets:  3,
		DefaultReps:  12,
	},
	{
		Name:         "pull up",
		Aliases:      []string{"pullup", "chin up"},
		MuscleGroups: []string{"back", "biceps", "upper body"},
		Equipment:    "pull-up bar",
		Description:  "Hang from a bar with an overhand grip and pull until your chin clears the bar, then lower yourself all the way down.",
		DefaultSets:  3,
		DefaultReps:  8,
	},
	{
		Name:         "bent over row",
		Aliases:      []string{"barbell row", "row"},
		MuscleGroups: []string{"back", "biceps", "upper body"},
		Equipment:    "barbell",
		Description:  "Hinge forward with a flat back and pull the bar to your lower ribs, squeezing your shoulder blades together.",
		DefaultSets:  3,
		DefaultReps:  10,
	},
	{
		Name:         "overhead press",
		Aliases:      []string{"shoulder press", "military press"},
		MuscleGroups: []string{"shoulders", "triceps", "upper body"},
		Equipment:    "barbell",
		Description:  "Press the bar from your collarbone to overhead lockout, moving your head back slightly to clear the bar path.",
		DefaultSets:  3,
		DefaultReps:  8,
	},
	{
		Name:         "lunge",
		Aliases:      []string{"walking lunge", "forward lunge"},
		MuscleGroups: []string{"legs", "glutes", "lower body"},
		Equipment:    "bodyweight",
		Description:  "Step forward and lower until both knees are bent to about 90 degrees, then push back to standing.",
		DefaultSets:  3,
		DefaultReps:  10,
	},
	{
		Name:         "bicep curl",
		Aliases:      []string{"curl", "dumbbell curl"},
		MuscleGroups: []string{"biceps", "arms", "upper body"},
		Equipment:    "dumbbells",
		Description:  "With elbows pinned to your sides, curl the weights up by bending at the elbow, then lower slowly.",
		DefaultSets:  3,
		DefaultReps:  12,
	},
	{
		Name:         "tricep dip",
		Aliases:      []string{"dip", "bench dip"},
		MuscleGroups: []string{"triceps", "arms", "chest", "upper body"},
		Equipment:    "parallel bars",
		Description:  "Support yourself on parallel bars, lower until your elbows reach about 90 degrees, then press back up.",
		DefaultSets:  3,
		DefaultReps:  10,
	},
	{
		Name:         "plank",
		Aliases:      []string{"front plank"},
		MuscleGroups: []string{"core", "abs"},
		Equipment:    "bodyweight",
		Description:  "Hold a straight line from head to heels on your forearms and toes, bracing your abs and glutes.",
		DefaultSets:  3,
		DefaultReps:  1,
	},
	{
		Name:         "hip thrust",
		Aliases:      []string{"barbell hip thrust", "glute bridge"},
		MuscleGroups: []string{"glutes", "legs", "lower body"},
		Equipment:    "barbell",
		Description:  "With your upper back on a bench and the bar over your hips, drive your hips up until your torso is parallel to the floor.",
		DefaultSets:  3,
		DefaultReps:  10,
	},
}
