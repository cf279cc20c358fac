package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

func initTokenEncoder() error {
	encoderOnce.Do(func() {
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// CountTokens counts cl100k_base tokens, falling back to an estimate when
// the encoding cannot be loaded (it is fetched on first use).
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := initTokenEncoder(); err != nil {
		return EstimateTokens(text)
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}

// EstimateTokens approximates four characters per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// TruncateToTokens cuts text to at most max tokens.
func TruncateToTokens(text string, max int) string {
	if max <= 0 || CountTokens(text) <= max {
		return text
	}
	if err := initTokenEncoder(); err != nil {
		limit := max * 4
		if limit > len(text) {
			limit = len(text)
		}
		return text[:limit]
	}
	tokens := tokenEncoder.Encode(text, nil, nil)
	return tokenEncoder.Decode(tokens[:max])
}
