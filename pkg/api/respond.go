package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends a structured error. Codes from pkg/errors fill in the
// code, retryable flag and user message.
func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var rcErr *rcerrors.Error
	if errors.As(err, &rcErr) {
		resp.Code = string(rcErr.Code)
		resp.Error = rcerrors.UserMessage(err, rcErr.Message)
		resp.Retryable = rcErr.Retryable
		resp.Details = rcErr.Error()
	} else if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps an error code onto an HTTP status.
func statusFor(err error) int {
	switch rcerrors.GetCode(err) {
	case rcerrors.CodeSessionNotFound:
		return http.StatusNotFound
	case rcerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case rcerrors.CodeModelUnavailable, rcerrors.CodeModelRateLimit:
		return http.StatusServiceUnavailable
	case rcerrors.CodeModelTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decodeJSONBody decodes a bounded JSON body into dst. An empty body is
// accepted when allowEOF is set.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, allowEOF bool) (int, error) {
	if r.Body == nil {
		if allowEOF {
			return 0, nil
		}
		return http.StatusBadRequest, fmt.Errorf("request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEOF && errors.Is(err, io.EOF) {
			return 0, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body too large (max %d bytes)", maxBodyBytes)
		}
		return http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}
	return 0, nil
}
