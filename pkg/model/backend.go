// Package model defines the language model backend contract, the two
// complexity tiers, and an OpenAI-compatible HTTP backend.
package model

import (
	"context"
	"fmt"
	"strings"

	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
)

// Tier is a backend quality/cost level.
type Tier string

const (
	TierFast    Tier = "fast"
	TierCapable Tier = "capable"
)

// Other returns the alternate tier.
func (t Tier) Other() Tier {
	if t == TierFast {
		return TierCapable
	}
	return TierFast
}

// ParseTier accepts "fast" or "capable" in any case.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast, nil
	case TierCapable:
		return TierCapable, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Request is a single completion request.
type Request struct {
	Prompt          string  `json:"prompt"`
	System          string  `json:"system,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completion result.
type Response struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// ChunkFunc receives streamed content. Returning an error stops the stream.
type ChunkFunc func(chunk string) error

// Backend is a language model endpoint.
//
//go:generate mockgen -package=mocks -destination=mocks/mock_backend.go github.com/odvcencio/repcoach/pkg/model Backend
type Backend interface {
	// ID names the backend for logs and metrics.
	ID() string
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream delivers content incrementally. When ctx is cancelled mid-stream
	// it returns the partial response together with ctx.Err().
	Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error)
}

// ErrUnavailable matches any error reporting a missing or unreachable
// backend, via errors.Is.
var ErrUnavailable = rcerrors.New(rcerrors.CodeModelUnavailable, "")

// Unavailable builds an unavailability error for tier.
func Unavailable(tier Tier, reason string) error {
	return rcerrors.Newf(rcerrors.CodeModelUnavailable, "%s tier unavailable: %s", tier, reason).
		WithContext("tier", string(tier)).
		WithUserMessage("I can't reach my planning models right now.")
}

type streamSinkKey struct{}

// WithStreamSink attaches a chunk receiver to ctx. Components that generate
// user-facing text stream through it when present.
func WithStreamSink(ctx context.Context, fn ChunkFunc) context.Context {
	return context.WithValue(ctx, streamSinkKey{}, fn)
}

// StreamSink returns the chunk receiver attached to ctx, if any.
func StreamSink(ctx context.Context) (ChunkFunc, bool) {
	fn, ok := ctx.Value(streamSinkKey{}).(ChunkFunc)
	return fn, ok && fn != nil
}
