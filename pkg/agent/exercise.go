package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/telemetry"
)

const exerciseSystemPrompt = "You are a strength coach. Describe the named exercise in two or three sentences: how to perform it and which muscles it works. Plain text only."

// describeFallback asks a model about an exercise the catalog lacks. The
// router picks the first tier from the user's wording; the other tier is
// tried when it fails. A failure leaves the catalog miss as the answer.
func (a *Agent) describeFallback(ctx context.Context, exercise, input string, o *outcome) {
	if exercise == "" {
		return
	}
	text, err := a.describeExercise(ctx, exercise, input)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Debug("exercise description unavailable", zap.String("exercise", exercise), zap.Error(err))
		}
		return
	}
	o.toolText = text
}

func (a *Agent) describeExercise(ctx context.Context, exercise, input string) (text string, err error) {
	decision := a.router.Classify(input)
	ctx, span := telemetry.StartSpan(ctx, "agent.describe_exercise",
		attribute.String("router.tier", string(decision.Tier)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	req := model.Request{
		System:          exerciseSystemPrompt,
		Prompt:          fmt.Sprintf("Exercise: %s", exercise),
		MaxOutputTokens: 300,
		Temperature:     0.3,
	}
	sink, streaming := model.StreamSink(ctx)

	var errs []error
	for _, tier := range []model.Tier{decision.Tier, decision.Tier.Other()} {
		backend, getErr := a.tiers.Get(tier)
		if getErr != nil {
			errs = append(errs, getErr)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		var resp *model.Response
		var callErr error
		emitted := 0
		if streaming {
			resp, callErr = backend.Stream(callCtx, req, func(chunk string) error {
				emitted++
				return sink(chunk)
			})
		} else {
			resp, callErr = backend.Complete(callCtx, req)
		}
		cancel()
		telemetry.RecordBackendCall(string(tier), callErr)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if resp != nil && ((callErr == nil && resp.Success) || emitted > 0) {
			if content := strings.TrimSpace(resp.Content); content != "" {
				return content, nil
			}
		}
		if callErr == nil {
			callErr = errors.New("empty response")
		}
		errs = append(errs, fmt.Errorf("%s: %w", tier, callErr))
	}
	return "", errors.Join(errs...)
}
