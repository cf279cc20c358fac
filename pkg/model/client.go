package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
)

const (
	defaultTimeout       = 2 * time.Minute
	defaultMaxRetries    = 2
	defaultRetryBase     = 500 * time.Millisecond
	maxRetryDelay        = 10 * time.Second
	defaultRateLimit     = 5.0
	defaultBurstSize     = 10
	maxErrorBodyPreview  = 500
	maxStreamLineSize    = 1024 * 1024
	initialStreamBufSize = 64 * 1024
)

// Known providers and their OpenAI-compatible base URLs.
var providerBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

// ProviderBaseURL returns the default base URL for provider.
func ProviderBaseURL(provider string) (string, bool) {
	u, ok := providerBaseURLs[strings.ToLower(provider)]
	return u, ok
}

// ClientConfig configures an OpenAI-compatible Client.
type ClientConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	CircuitBreaker    *CircuitBreakerConfig

	HTTPClient *http.Client
	Logger     *zap.Logger
	// TokenCounter fills usage when the backend omits it. Defaults to CountTokens.
	TokenCounter func(string) int

	// Temperature applies when a request leaves it zero.
	Temperature float64
	// MaxOutputTokens caps every request; zero leaves requests uncapped.
	MaxOutputTokens int
}

// DefaultTransport returns an http.Transport with tuned pool settings.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Client is a Backend speaking the OpenAI chat completions protocol. It
// works against OpenAI, OpenRouter and Ollama's compatibility endpoint.
type Client struct {
	id          string
	model       string
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *CircuitBreaker
	maxRetries  int
	retryBase   time.Duration
	logger      *zap.Logger
	countTokens func(string) int
	temperature float64
	maxTokens   int
}

var _ Backend = (*Client)(nil)

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, rcerrors.New(rcerrors.CodeConfigInvalid, "model name is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		u, ok := ProviderBaseURL(cfg.Provider)
		if !ok {
			return nil, rcerrors.Newf(rcerrors.CodeConfigInvalid, "unknown provider %q and no base URL", cfg.Provider)
		}
		baseURL = u
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout, Transport: DefaultTransport()}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurstSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	cbConfig := DefaultCircuitBreakerConfig()
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	id := cfg.Model
	if cfg.Provider != "" {
		id = cfg.Provider + "/" + cfg.Model
	}
	logger = logger.With(zap.String("backend", id))
	counter := cfg.TokenCounter
	if counter == nil {
		counter = CountTokens
	}

	return &Client{
		id:          id,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		breaker:     NewCircuitBreaker(cbConfig, logger),
		maxRetries:  maxRetries,
		retryBase:   retryBase,
		logger:      logger,
		countTokens: counter,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
	}, nil
}

// ID identifies the backend as provider/model.
func (c *Client) ID() string { return c.id }

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// Complete performs a non-streaming completion with retries.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var result *Response
	err = c.breaker.Call(func() error {
		resp, err := c.post(ctx, body, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var chat chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
			return rcerrors.Wrap(err, rcerrors.CodeModelAPI, "decoding response")
		}
		if len(chat.Choices) == 0 {
			return rcerrors.New(rcerrors.CodeModelAPI, "response has no choices")
		}
		content := chat.Choices[0].Message.Content
		result = &Response{
			Success: true,
			Content: content,
			Model:   chat.Model,
			Usage:   c.fillUsage(chat.Usage, req, content),
		}
		return nil
	}, countsAsFailure)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	return result, nil
}

// Stream performs a streaming completion, calling onChunk for each content
// delta. Retries only happen before the first byte of the stream.
func (c *Client) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	partial := &Response{Model: c.model}
	var content strings.Builder
	err = c.breaker.Call(func() error {
		resp, err := c.post(ctx, body, true)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return c.parseSSEStream(ctx, resp.Body, partial, &content, onChunk)
	}, countsAsFailure)

	partial.Content = content.String()
	partial.Usage = c.fillUsage(partial.Usage, req, partial.Content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return partial, ctxErr
		}
		return partial, c.classify(ctx, err)
	}
	partial.Success = true
	return partial, nil
}

func (c *Client) buildRequest(req Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxOutputTokens
	if c.maxTokens > 0 && (maxTokens <= 0 || maxTokens > c.maxTokens) {
		maxTokens = c.maxTokens
	}
	return chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

// post sends body to the completions endpoint, retrying transport errors
// and retryable status codes. The caller closes the response body.
func (c *Client) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt, lastErr)
			c.logger.Debug("retrying backend request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		c.setHeaders(httpReq, stream)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		lastErr = apiErr
		if !apiErr.Retryable {
			return nil, apiErr
		}
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	req.Header.Set("X-Title", "repcoach")
}

func (c *Client) parseSSEStream(ctx context.Context, r io.Reader, resp *Response, content *strings.Builder, onChunk ChunkFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialStreamBufSize), maxStreamLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return rcerrors.Wrap(err, rcerrors.CodeModelAPI, "decoding stream chunk")
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			content.WriteString(delta)
			if onChunk != nil {
				if err := onChunk(delta); err != nil {
					return err
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return rcerrors.Wrap(err, rcerrors.CodeModelAPI, "reading stream")
	}
	return ctx.Err()
}

func (c *Client) fillUsage(u Usage, req Request, content string) Usage {
	if u.TotalTokens > 0 {
		return u
	}
	u.PromptTokens = c.countTokens(req.System) + c.countTokens(req.Prompt)
	u.CompletionTokens = c.countTokens(content)
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}

func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter > maxRetryDelay {
			return maxRetryDelay
		}
		return apiErr.RetryAfter
	}
	delay := c.retryBase << (attempt - 1)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	return delay
}

// classify maps transport failures onto repcoach error codes.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return rcerrors.Wrap(ctxErr, rcerrors.CodeModelTimeout, c.id+" timed out").WithRetryable(true)
		}
		return ctxErr
	}
	var rcErr *rcerrors.Error
	if errors.As(err, &rcErr) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code := rcerrors.CodeModelAPI
		if apiErr.IsRateLimitError() {
			code = rcerrors.CodeModelRateLimit
		}
		return rcerrors.Wrap(err, code, c.id+" request failed").
			WithContext("status", apiErr.StatusCode).
			WithRetryable(apiErr.Retryable)
	}
	return rcerrors.Wrap(err, rcerrors.CodeModelUnavailable, c.id+" unreachable").WithRetryable(true)
}

// countsAsFailure keeps caller cancellation and client errors from
// tripping the breaker.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && !apiErr.IsRateLimitError() {
		return false
	}
	return true
}

func parseError(resp *http.Response) *APIError {
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Retryable: retryable}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		raw := string(body)
		if len(raw) > maxErrorBodyPreview {
			raw = raw[:maxErrorBodyPreview] + "..."
		}
		message := resp.Status
		if raw != "" {
			message = fmt.Sprintf("%s (raw: %s)", resp.Status, raw)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  retryable,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	code := ""
	if errResp.Error.Code != nil {
		code = fmt.Sprint(errResp.Error.Code)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errResp.Error.Message,
		Type:       errResp.Error.Type,
		Code:       code,
		Retryable:  retryable,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}
	return 0
}
