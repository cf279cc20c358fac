package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/telemetry"
)

// stageCall describes one backend request and how to accept its output.
type stageCall struct {
	stage   Stage
	request model.Request
	// accept validates the content. A non-nil error counts as a failed call
	// and moves on to the other tier.
	accept func(content string) error
	// stream routes content through the context's stream sink when one is
	// attached.
	stream bool
}

// call runs c on the stage's preferred tier and then, on failure, on the
// other tier.
func (p *Pipeline) call(ctx context.Context, c stageCall) (content string, sr StageResult, err error) {
	start := p.now()
	sr = StageResult{Stage: c.stage}
	preferred := c.stage.PreferredTier()
	if p.router != nil {
		preferred = p.router.Route(string(c.stage), preferred).Tier
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline."+string(c.stage),
		attribute.String("pipeline.preferred_tier", string(preferred)),
	)
	defer func() {
		sr.Elapsed = p.now().Sub(start)
		if err != nil {
			sr.Err = err.Error()
		}
		telemetry.EndSpan(span, err)
	}()

	p.publish(telemetry.EventStageStarted, map[string]any{
		"stage": string(c.stage),
		"tier":  string(preferred),
	})

	var errs []error
	for i, tier := range []model.Tier{preferred, preferred.Other()} {
		if i > 0 {
			sr.FellBack = true
			telemetry.RecordTierFallback(string(c.stage))
			p.publish(telemetry.EventTierFallback, map[string]any{
				"stage": string(c.stage),
				"from":  string(preferred),
				"to":    string(tier),
			})
			p.logger.Warn("stage falling back to other tier",
				zap.String("stage", string(c.stage)),
				zap.String("tier", string(tier)),
				zap.Error(errs[len(errs)-1]),
			)
		}

		out, backendID, callErr := p.attempt(ctx, tier, c)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", sr, ctxErr
		}
		if callErr == nil {
			sr.Tier = tier
			sr.Backend = backendID
			p.publish(telemetry.EventStageCompleted, map[string]any{
				"stage":     string(c.stage),
				"tier":      string(tier),
				"fell_back": sr.FellBack,
			})
			return out, sr, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", tier, callErr))
	}

	return "", sr, rcerrors.Wrap(errors.Join(errs...), rcerrors.CodePipelineStage,
		fmt.Sprintf("stage %s failed on both tiers", c.stage)).
		WithContext("stage", string(c.stage))
}

// attempt makes a single call on tier under the per-call timeout.
func (p *Pipeline) attempt(ctx context.Context, tier model.Tier, c stageCall) (string, string, error) {
	backend, err := p.tiers.Get(tier)
	if err != nil {
		return "", "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	var resp *model.Response
	sink, hasSink := model.StreamSink(ctx)
	emitted := 0
	if c.stream && hasSink {
		resp, err = backend.Stream(callCtx, c.request, func(chunk string) error {
			emitted++
			return sink(chunk)
		})
	} else {
		resp, err = backend.Complete(callCtx, c.request)
	}
	telemetry.RecordBackendCall(string(tier), err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = rcerrors.Wrap(err, rcerrors.CodeModelTimeout,
				fmt.Sprintf("%s call exceeded %s", backend.ID(), p.callTimeout))
		}
		// Text already shown to the user cannot be unsent, so a stream
		// that broke midway keeps what it delivered.
		if emitted > 0 && resp != nil && ctx.Err() == nil && c.accept(resp.Content) == nil {
			p.logger.Warn("stream ended early; keeping partial output",
				zap.String("stage", string(c.stage)),
				zap.String("backend", backend.ID()),
				zap.Error(err),
			)
			return resp.Content, backend.ID(), nil
		}
		return "", backend.ID(), err
	}
	if resp == nil || !resp.Success {
		return "", backend.ID(), fmt.Errorf("%s returned an unsuccessful response", backend.ID())
	}
	content := strings.TrimSpace(resp.Content)
	if err := c.accept(content); err != nil {
		return "", backend.ID(), err
	}
	return content, backend.ID(), nil
}

func (p *Pipeline) publish(t telemetry.EventType, data map[string]any) {
	p.hub.Publish(telemetry.Event{Type: t, Timestamp: time.Now(), Data: data})
}
