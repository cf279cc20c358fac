// Package errors provides structured errors with codes, context and a
// user-facing message.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies an error.
type Code string

const (
	CodeConfigLoad    Code = "CONFIG_LOAD"
	CodeConfigParse   Code = "CONFIG_PARSE"
	CodeConfigInvalid Code = "CONFIG_INVALID"

	CodeModelUnavailable Code = "MODEL_UNAVAILABLE"
	CodeModelAPI         Code = "MODEL_API_ERROR"
	CodeModelTimeout     Code = "MODEL_TIMEOUT"
	CodeModelRateLimit   Code = "MODEL_RATE_LIMIT"

	CodeStorageRead  Code = "STORAGE_READ"
	CodeStorageWrite Code = "STORAGE_WRITE"

	CodePipelineStage Code = "PIPELINE_STAGE"

	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInternal        Code = "INTERNAL"
)

// Error is a structured error.
type Error struct {
	Code        Code
	Message     string
	Underlying  error
	Context     map[string]any
	Retryable   bool
	UserMessage string
}

// New creates a structured error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err. A nil err returns nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Underlying: err}
}

// WithContext adds a key-value pair.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the text shown to end users.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, e.Context[k])
		}
		sb.WriteString("}")
	}
	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches another *Error by code, so sentinel values compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// IsCode reports whether any error in err's chain has code.
func IsCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Underlying
	}
	return false
}

// GetCode returns the outermost code, or CodeInternal for foreign errors.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the outermost structured error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Retryable
}

// UserMessage returns the first user-facing message in err's chain, or
// fallback.
func UserMessage(err error, fallback string) string {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			break
		}
		if e.UserMessage != "" {
			return e.UserMessage
		}
		err = e.Underlying
	}
	return fallback
}

// Is and As re-export the standard helpers so callers need one import.
var (
	Is = stderrors.Is
	As = stderrors.As
)
