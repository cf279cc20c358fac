// Package router picks a backend tier for a request by keyword presence.
package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/repcoach/pkg/intent"
	"github.com/odvcencio/repcoach/pkg/model"
)

// Category groups vocabulary that marks a request as complex.
type Category string

const (
	CategoryCreation     Category = "creation"
	CategoryMuscleGroup  Category = "muscle_group"
	CategoryModification Category = "modification"
	CategoryAnalytical   Category = "analytical"
	CategoryCustom       Category = "custom"
)

var defaultVocabulary = map[Category][]string{
	CategoryCreation: {
		"create", "make", "build", "generate", "design", "plan", "program", "routine", "workout",
	},
	CategoryMuscleGroup: {
		"chest", "back", "legs", "leg", "shoulders", "shoulder", "arms", "arm", "biceps", "triceps",
		"core", "abs", "glutes", "hamstrings", "quads", "calves", "full body", "upper body", "lower body",
	},
	CategoryModification: {
		"double", "increase", "decrease", "reduce", "swap", "replace", "modify", "change", "adjust", "add", "remove",
	},
	CategoryAnalytical: {
		"calculate", "analyze", "analyse", "compare", "evaluate", "estimate", "explain why", "optimize", "progression",
	},
}

// Decision is the outcome of classifying one request.
type Decision struct {
	Tier         model.Tier
	Matched      []string
	Categories   []Category
	Reason       string
	Stage        string
	ClassifiedAt time.Time
}

// Hook can observe or replace a decision. Returning nil keeps it.
type Hook func(d *Decision) *Decision

type keyword struct {
	word     string
	category Category
	re       *regexp.Regexp
}

// Stats counts decisions per tier.
type Stats struct {
	Total    int
	Fast     int
	Capable  int
	Keywords map[string]int
}

// Router classifies request complexity.
type Router struct {
	keywords []keyword
	now      func() time.Time

	mu    sync.RWMutex
	hooks []Hook
	stats Stats
}

// Option configures a Router.
type Option func(*Router)

// WithKeywords adds extra vocabulary that selects the capable tier.
func WithKeywords(words ...string) Option {
	return func(r *Router) {
		for _, w := range words {
			r.add(CategoryCustom, w)
		}
	}
}

// WithHook registers a hook at construction.
func WithHook(h Hook) Option {
	return func(r *Router) { r.Register(h) }
}

// New builds a Router with the default vocabulary.
func New(opts ...Option) *Router {
	r := &Router{now: time.Now, stats: Stats{Keywords: map[string]int{}}}
	cats := make([]string, 0, len(defaultVocabulary))
	for c := range defaultVocabulary {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		for _, w := range defaultVocabulary[Category(c)] {
			r.add(Category(c), w)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) add(cat Category, word string) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return
	}
	for _, k := range r.keywords {
		if k.word == word {
			return
		}
	}
	pattern := `\b` + strings.ReplaceAll(regexp.QuoteMeta(word), " ", `\s+`) + `\b`
	r.keywords = append(r.keywords, keyword{word: word, category: cat, re: regexp.MustCompile(pattern)})
}

// Register adds a routing hook.
func (r *Router) Register(h Hook) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, h)
	r.mu.Unlock()
}

// Classify selects CAPABLE when any vocabulary word is present and FAST
// otherwise.
func (r *Router) Classify(text string) Decision {
	normalized := intent.Normalize(text)
	d := Decision{Tier: model.TierFast, ClassifiedAt: r.now()}

	seen := map[Category]bool{}
	for _, k := range r.keywords {
		if !k.re.MatchString(normalized) {
			continue
		}
		d.Matched = append(d.Matched, k.word)
		if !seen[k.category] {
			seen[k.category] = true
			d.Categories = append(d.Categories, k.category)
		}
	}
	if len(d.Matched) > 0 {
		d.Tier = model.TierCapable
		d.Reason = fmt.Sprintf("matched %s", strings.Join(d.Matched, ", "))
	} else {
		d.Reason = "no complexity keywords"
	}
	return r.finish(&d)
}

// Route returns a fixed-tier decision for a named pipeline stage, still
// subject to hooks.
func (r *Router) Route(stage string, tier model.Tier) Decision {
	d := Decision{
		Tier:         tier,
		Stage:        stage,
		Reason:       fmt.Sprintf("stage %s prefers %s", stage, tier),
		ClassifiedAt: r.now(),
	}
	return r.finish(&d)
}

func (r *Router) finish(d *Decision) Decision {
	r.mu.RLock()
	hooks := append([]Hook(nil), r.hooks...)
	r.mu.RUnlock()

	out := d
	for _, h := range hooks {
		if next := h(out); next != nil {
			out = next
		}
	}

	r.mu.Lock()
	r.stats.Total++
	if out.Tier == model.TierCapable {
		r.stats.Capable++
	} else {
		r.stats.Fast++
	}
	for _, w := range out.Matched {
		r.stats.Keywords[w]++
	}
	r.mu.Unlock()
	return *out
}

// Stats returns a copy of the decision counters.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.stats
	s.Keywords = make(map[string]int, len(r.stats.Keywords))
	for k, v := range r.stats.Keywords {
		s.Keywords[k] = v
	}
	return s
}

// Vocabulary lists configured keywords per category.
func (r *Router) Vocabulary() map[Category][]string {
	out := map[Category][]string{}
	for _, k := range r.keywords {
		out[k.category] = append(out[k.category], k.word)
	}
	return out
}
