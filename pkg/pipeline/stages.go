package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odvcencio/repcoach/pkg/workout"
)

const (
	systemIntentAnalysis = "You are the intent analysis step of a strength training planner. " +
		"Restate the user's training goal in one short sentence. Reply with the sentence only."
	systemParameterExtraction = "You are the parameter extraction step of a strength training planner. " +
		`Reply with a JSON object {"muscle_group": string, "duration_minutes": integer, ` +
		`"experience_level": "beginner"|"intermediate"|"advanced", "equipment": string}. ` +
		"Use empty values for anything the user did not say."
	systemValidation = "You are the validation step of a strength training planner. " +
		"Correct the JSON parameters so they are realistic: duration between 10 and 180 minutes, " +
		"a known experience level, a real muscle group. Reply with the corrected JSON object only."
	systemGeneration = "You are the generation step of a strength training planner. " +
		`Reply with a JSON object {"name": string, "exercises": [{"name": string, "sets": integer, ` +
		`"reps": integer, "rest_seconds": integer, "notes": string}]}.`
	systemFormatting = "You are the formatting step of a strength training planner. " +
		"Present the workout to the user in a friendly, concise way with one line per exercise."
)

var errEmptyOutput = errors.New("empty output")

type parameters struct {
	MuscleGroup     string `json:"muscle_group"`
	DurationMinutes int    `json:"duration_minutes"`
	ExperienceLevel string `json:"experience_level"`
	Equipment       string `json:"equipment"`
}

func parametersOf(r workout.Request) parameters {
	return parameters{
		MuscleGroup:     r.MuscleGroup,
		DurationMinutes: r.DurationMinutes,
		ExperienceLevel: r.ExperienceLevel,
		Equipment:       r.Equipment,
	}
}

type generatedWorkout struct {
	Name      string             `json:"name"`
	Exercises []workout.Exercise `json:"exercises"`
}

func nonEmpty(content string) error {
	if strings.TrimSpace(content) == "" {
		return errEmptyOutput
	}
	return nil
}

func (p *Pipeline) analyzeIntent(ctx context.Context, req workout.Request) (string, StageResult, error) {
	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("a %s workout", orDefault(req.MuscleGroup, workout.DefaultMuscleGroup))
	}
	return p.call(ctx, stageCall{
		stage:   StageIntentAnalysis,
		request: withDefaults(systemIntentAnalysis, "User request: "+text, 128, 0.2),
		accept:  nonEmpty,
	})
}

// extractParameters asks for structured parameters. Values the caller
// already supplied win over extracted ones.
func (p *Pipeline) extractParameters(ctx context.Context, req workout.Request, goal string) (workout.Request, StageResult, error) {
	var got parameters
	prompt := fmt.Sprintf("User request: %s\nGoal: %s\nKnown parameters: %s", req.Text, goal, mustJSON(parametersOf(req)))
	_, sr, err := p.call(ctx, stageCall{
		stage:   StageParameterExtraction,
		request: withDefaults(systemParameterExtraction, prompt, 256, 0.1),
		accept: func(content string) error {
			got = parameters{}
			return decodeJSON(content, &got)
		},
	})
	if err != nil {
		return req, sr, err
	}

	out := req
	if out.MuscleGroup == "" {
		out.MuscleGroup = strings.ToLower(strings.TrimSpace(got.MuscleGroup))
	}
	if out.DurationMinutes <= 0 {
		out.DurationMinutes = got.DurationMinutes
	}
	if out.ExperienceLevel == "" {
		out.ExperienceLevel = strings.ToLower(strings.TrimSpace(got.ExperienceLevel))
	}
	if out.Equipment == "" {
		out.Equipment = strings.TrimSpace(got.Equipment)
	}
	return out, sr, nil
}

// validate lets a model correct the parameters, then enforces local bounds.
// When neither tier answers the local bounds alone apply.
func (p *Pipeline) validate(ctx context.Context, req workout.Request) (workout.Request, StageResult, error) {
	var got parameters
	_, sr, err := p.call(ctx, stageCall{
		stage:   StageValidation,
		request: withDefaults(systemValidation, "Parameters: "+mustJSON(parametersOf(req)), 256, 0.1),
		accept: func(content string) error {
			got = parameters{}
			return decodeJSON(content, &got)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return req, sr, ctx.Err()
		}
		p.logger.Debug("validation fell back to local bounds")
		sr.Local = true
		sr.Err = ""
		return req.Normalize(), sr, nil
	}

	out := req
	if g := strings.ToLower(strings.TrimSpace(got.MuscleGroup)); g != "" {
		out.MuscleGroup = g
	}
	if got.DurationMinutes > 0 {
		out.DurationMinutes = got.DurationMinutes
	}
	if l := strings.ToLower(strings.TrimSpace(got.ExperienceLevel)); l != "" {
		out.ExperienceLevel = l
	}
	if e := strings.TrimSpace(got.Equipment); e != "" {
		out.Equipment = e
	}
	return out.Normalize(), sr, nil
}

func (p *Pipeline) generate(ctx context.Context, req workout.Request, goal string) (*workout.Workout, StageResult, error) {
	var suggestions []string
	for _, e := range p.catalog.ForMuscleGroup(req.MuscleGroup) {
		suggestions = append(suggestions, fmt.Sprintf("%s (%dx%d)", e.Name, e.DefaultSets, e.DefaultReps))
	}
	prompt := fmt.Sprintf("Goal: %s\nParameters: %s", goal, mustJSON(parametersOf(req)))
	if len(suggestions) > 0 {
		prompt += "\nSuggested exercises: " + strings.Join(suggestions, ", ")
	}

	var w *workout.Workout
	_, sr, err := p.call(ctx, stageCall{
		stage:   StageGeneration,
		request: withDefaults(systemGeneration, prompt, 1024, 0.4),
		accept: func(content string) error {
			var g generatedWorkout
			if err := decodeJSON(content, &g); err != nil {
				return err
			}
			built, err := p.buildWorkout(req, g)
			if err != nil {
				return err
			}
			w = built
			return nil
		},
	})
	if err != nil {
		return nil, sr, err
	}
	return w, sr, nil
}

// buildWorkout checks generated exercises, filling sets and reps from the
// catalog when the model left them out.
func (p *Pipeline) buildWorkout(req workout.Request, g generatedWorkout) (*workout.Workout, error) {
	var exercises []workout.Exercise
	for _, e := range g.Exercises {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		if e.Sets <= 0 || e.Reps <= 0 {
			entry, ok := p.catalog.Lookup(e.Name)
			if !ok {
				return nil, fmt.Errorf("exercise %q has no sets or reps", e.Name)
			}
			if e.Sets <= 0 {
				e.Sets = entry.DefaultSets
			}
			if e.Reps <= 0 {
				e.Reps = entry.DefaultReps
			}
		}
		if e.RestSeconds < 0 {
			e.RestSeconds = 0
		}
		exercises = append(exercises, e)
	}
	if len(exercises) == 0 {
		return nil, errors.New("generated workout has no exercises")
	}

	name := strings.TrimSpace(g.Name)
	if name == "" {
		name = cases.Title(language.English).String(req.MuscleGroup) + " Workout"
	}
	return &workout.Workout{
		ID:              workout.NewID(),
		Name:            name,
		MuscleGroup:     req.MuscleGroup,
		DurationMinutes: req.DurationMinutes,
		ExperienceLevel: req.ExperienceLevel,
		Exercises:       exercises,
		CreatedAt:       p.now(),
	}, nil
}

// format asks the fast tier for a user-facing summary, streaming it when
// the caller attached a sink. Without any tier it formats locally.
func (p *Pipeline) format(ctx context.Context, w *workout.Workout, goal string) (string, StageResult, error) {
	prompt := fmt.Sprintf("Goal: %s\nWorkout: %s", goal, mustJSON(w))
	summary, sr, err := p.call(ctx, stageCall{
		stage:   StageFormatting,
		request: withDefaults(systemFormatting, prompt, 512, 0.7),
		accept:  nonEmpty,
		stream:  true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", sr, ctx.Err()
		}
		sr.Local = true
		sr.Err = ""
		summary = Summarize(w)
		if sink, ok := streamSink(ctx); ok {
			_ = sink(summary)
		}
	}
	return summary, sr, nil
}
