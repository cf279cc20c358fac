package tool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64
	RetryableFunc func(error) bool
	// Tools limits retries to the named tools; empty retries every tool.
	Tools []string
}

// Retry retries tool execution with exponential backoff. Only returned
// errors are retried; a Result with Success=false is a final answer.
func Retry(cfg RetryConfig) Middleware {
	allowed := make(map[string]bool, len(cfg.Tools))
	for _, name := range cfg.Tools {
		allowed[name] = true
	}
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*builtin.Result, error) {
			attempts := cfg.MaxAttempts
			if attempts <= 0 {
				attempts = 1
			}
			if len(allowed) > 0 && (ctx == nil || !allowed[ctx.ToolName]) {
				attempts = 1
			}
			retryable := cfg.RetryableFunc
			if retryable == nil {
				retryable = DefaultRetryable
			}

			delay := cfg.InitialDelay
			var lastErr error
			for attempt := 1; attempt <= attempts; attempt++ {
				loopCtx := ctxContext(ctx)
				if err := loopCtx.Err(); err != nil {
					return nil, err
				}
				if ctx != nil {
					ctx.Attempt = attempt
				}
				result, err := next(ctx)
				if err == nil {
					return result, nil
				}

				lastErr = err
				if !retryable(err) || attempt == attempts {
					return result, err
				}

				if err := sleepWithContext(loopCtx, applyJitter(delay, cfg.Jitter)); err != nil {
					return nil, err
				}
				delay = minDuration(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
			}

			name := ""
			if ctx != nil {
				name = ctx.ToolName
			}
			return nil, fmt.Errorf("tool %s failed after %d attempts: %w", name, attempts, lastErr)
		}
	}
}

// DefaultRetryable retries transient network failures. Panics and context
// errors are never retried.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "temporary failure")
}

func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if delay <= 0 || jitter <= 0 {
		return delay
	}
	if jitter > 1 {
		jitter = 1
	}
	base := float64(delay)
	lo := base * (1 - jitter)
	hi := base * (1 + jitter)
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

func minDuration(a, b time.Duration) time.Duration {
	if b <= 0 || a < b {
		return a
	}
	return b
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
