package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, CodeModelTimeout, "backend call timed out").
		WithContext("tier", "fast").
		WithContext("attempt", 2)
	assert.Equal(t, "[MODEL_TIMEOUT] backend call timed out {attempt: 2, tier: fast}: context deadline exceeded", err.Error())
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "x"))
}

func TestIsByCode(t *testing.T) {
	sentinel := New(CodeModelUnavailable, "")
	err := fmt.Errorf("stage failed: %w", Newf(CodeModelUnavailable, "tier %s missing", "capable"))
	assert.True(t, Is(err, sentinel))
	assert.False(t, Is(err, New(CodeModelTimeout, "")))
}

func TestIsCodeWalksChain(t *testing.T) {
	inner := New(CodeModelRateLimit, "slow down").WithRetryable(true)
	outer := Wrap(inner, CodePipelineStage, "generation failed")
	assert.True(t, IsCode(outer, CodePipelineStage))
	assert.True(t, IsCode(outer, CodeModelRateLimit))
	assert.False(t, IsCode(outer, CodeStorageRead))
	assert.Equal(t, CodePipelineStage, GetCode(outer))
	assert.Equal(t, CodeInternal, GetCode(stderrors.New("plain")))
	assert.Equal(t, Code(""), GetCode(nil))
	assert.False(t, IsRetryable(outer))
	assert.True(t, IsRetryable(inner))
}

func TestUserMessage(t *testing.T) {
	inner := New(CodeModelUnavailable, "no backend").WithUserMessage("Models are offline.")
	outer := Wrap(inner, CodePipelineStage, "stage failed")
	assert.Equal(t, "Models are offline.", UserMessage(outer, "fallback"))
	assert.Equal(t, "fallback", UserMessage(stderrors.New("x"), "fallback"))
}
