package intent

import (
	"regexp"
	"strings"
)

// State is the slice of working memory the classifier reads and writes.
type State interface {
	HasCurrentWorkout() bool
	RecordIntent(Intent)
}

// ambiguousDoublePhrase is matched exactly after normalization.
const ambiguousDoublePhrase = "double it"

// rule maps a set of patterns to an intent name. Rules are evaluated in
// order and the first match wins.
type rule struct {
	name       string
	confidence float64
	patterns   []*regexp.Regexp
	extract    func(normalized string, match []string) map[string]any
}

// Classifier is a deterministic pattern matcher. It is safe for concurrent
// use; all state lives in the State passed to Detect.
type Classifier struct {
	rules []rule
}

// NewClassifier returns a classifier loaded with the default rule corpus.
func NewClassifier() *Classifier {
	return &Classifier{rules: defaultRules()}
}

// Detect classifies input, records the result in state and returns it.
func (c *Classifier) Detect(input string, state State) Intent {
	in := c.classify(input, state != nil && state.HasCurrentWorkout())
	if state != nil {
		state.RecordIntent(in.Clone())
	}
	return in
}

func (c *Classifier) classify(input string, hasWorkout bool) Intent {
	normalized := Normalize(input)

	if normalized == ambiguousDoublePhrase {
		if hasWorkout {
			return New(AmbiguousDouble, 1.0)
		}
		return New(NoWorkoutToDouble, 1.0)
	}

	for _, r := range c.rules {
		for _, p := range r.patterns {
			match := p.FindStringSubmatch(normalized)
			if match == nil {
				continue
			}
			in := New(r.name, r.confidence)
			if r.extract != nil {
				for k, v := range r.extract(normalized, match) {
					in.Slots[k] = v
				}
			}
			if r.name == DirectModification && !hasWorkout {
				return New(NoWorkoutToDouble, r.confidence)
			}
			return in
		}
	}

	return New(Unknown, UnknownConfidence).WithSlot(SlotRawInput, input)
}

func defaultRules() []rule {
	return []rule{
		{
			name:       DirectModification,
			confidence: 0.95,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(?:please\s+)?(?:can you\s+)?double (?:the |my |all )?(sets|reps|both|sets and reps|reps and sets)(?: please)?$`),
			},
			extract: func(_ string, m []string) map[string]any {
				return map[string]any{SlotPlanType: planTypeFor(m[1])}
			},
		},
		{
			name:       Greeting,
			confidence: 0.95,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(?:hi|hello|hey|hiya|howdy|yo|good (?:morning|afternoon|evening))(?:\s+there)?(?:\s+coach)?$`),
			},
		},
		{
			name:       Farewell,
			confidence: 0.95,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(?:bye|goodbye|good bye|see you|see ya|later|catch you later|good night)\b`),
			},
		},
		{
			name:       Thanks,
			confidence: 0.95,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(?:thanks|thank you|thx|ty|cheers|much appreciated)\b`),
			},
		},
		{
			name:       Help,
			confidence: 0.9,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`^help(?: me)?$`),
				regexp.MustCompile(`\bwhat can you do\b`),
				regexp.MustCompile(`\bhow (?:do i|does this|do you) (?:use|work)\b`),
			},
		},
		{
			name:       CreateWorkout,
			confidence: 0.9,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:create|make|build|generate|plan|design|give me|i want|i need)\b.*\b(?:workout|routine|session|program)\b`),
				regexp.MustCompile(`\b(?:workout|routine) for\b`),
			},
			extract: extractWorkoutSlots,
		},
		{
			name:       ExerciseInfo,
			confidence: 0.85,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(?:what(?: is|'s| are)|tell me about|explain|describe|info on|information on|how (?:do i|do you|to) (?:do|perform))\s+(?:an?\s+|the\s+)?(.+)$`),
			},
			extract: func(_ string, m []string) map[string]any {
				return map[string]any{SlotExercise: strings.TrimSpace(m[1])}
			},
		},
	}
}

func planTypeFor(target string) string {
	switch {
	case strings.Contains(target, "both"), strings.Contains(target, " and "):
		return "DOUBLE_BOTH"
	case strings.HasPrefix(target, "rep"):
		return "DOUBLE_REPS"
	default:
		return "DOUBLE_SETS"
	}
}
