package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/workout"
)

// Summarize renders w without a model.
func Summarize(w *workout.Workout) string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's your %s", w.Name)
	var details []string
	if w.DurationMinutes > 0 {
		details = append(details, fmt.Sprintf("%d min", w.DurationMinutes))
	}
	if w.ExperienceLevel != "" {
		details = append(details, w.ExperienceLevel)
	}
	if len(details) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(details, ", "))
	}
	sb.WriteString(":")
	for i, e := range w.Exercises {
		fmt.Fprintf(&sb, "\n%d. %s: %d x %d", i+1, e.Name, e.Sets, e.Reps)
		if e.RestSeconds > 0 {
			fmt.Fprintf(&sb, ", rest %ds", e.RestSeconds)
		}
	}
	return sb.String()
}

func withDefaults(system, prompt string, maxTokens int, temperature float64) model.Request {
	return model.Request{
		System:          system,
		Prompt:          prompt,
		MaxOutputTokens: maxTokens,
		Temperature:     temperature,
	}
}

func streamSink(ctx context.Context) (model.ChunkFunc, bool) {
	return model.StreamSink(ctx)
}

// decodeJSON reads the first JSON object in content, tolerating prose or
// code fences around it.
func decodeJSON(content string, v any) error {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return errors.New("no JSON object in output")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("decoding output: %w", err)
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
