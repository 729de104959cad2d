package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"framelens/internal/logging"
	"framelens/internal/services"
	"framelens/internal/telemetry"
)

// Options configures a Client.
type Options struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxAttempts   int
	Timeout       time.Duration
	RateLimitStep time.Duration
	RetryDelay    time.Duration
}

// Sleeper waits for the given duration or until the context is done. Tests
// substitute a recording implementation.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client is a vision-LLM chat completions client.
type Client struct {
	opts       Options
	httpClient *http.Client
	sleep      Sleeper
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides the retry wait function.
func WithSleeper(sleep Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a vision client. A missing API key is a configuration error:
// the caller is expected to check before any batch work starts.
func New(opts Options, options ...Option) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "new", "API key not configured", nil)
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "new", "base URL not configured", nil)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "new", "model not configured", nil)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RateLimitStep <= 0 {
		opts.RateLimitStep = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")

	client := &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		sleep:      defaultSleep,
		logger:     logging.NewNop(),
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chat completions request/response shapes.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AnalyzeBatch sends one batch of JPEG frames with the instruction prompt
// and returns the model's text reply. Frames are interleaved with "Frame i"
// labels so batch-local indices in the reply line up with input order.
func (c *Client) AnalyzeBatch(ctx context.Context, prompt string, frames [][]byte) (string, error) {
	parts := make([]contentPart, 0, 1+2*len(frames))
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	for i, frame := range frames {
		parts = append(parts, contentPart{Type: "text", Text: fmt.Sprintf("Frame %d", i)})
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
			},
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.opts.Model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal batch request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		reply, retryDelay, err := c.doRequest(ctx, body, attempt)
		if err == nil {
			// A reply that does not decode as a JSON array is treated like
			// any other failed attempt and retried.
			var entries []json.RawMessage
			decodeErr := DecodeJSON(reply, &entries)
			if decodeErr == nil {
				return reply, nil
			}
			err = decodeErr
			retryDelay = c.opts.RetryDelay
		}
		lastErr = err
		if attempt == c.opts.MaxAttempts {
			break
		}
		telemetry.OCRRetriesTotal.Inc()
		c.logger.Warn("vision request failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("wait", retryDelay),
			logging.Error(err))
		if sleepErr := c.sleep(ctx, retryDelay); sleepErr != nil {
			return "", sleepErr
		}
	}
	return "", services.Wrap(services.ErrTransient, "vision", "analyze",
		fmt.Sprintf("batch failed after %d attempts", c.opts.MaxAttempts), lastErr)
}

// doRequest performs one HTTP attempt and, on failure, returns the delay
// to wait before the next one: rate limiting backs off linearly with the
// attempt number, everything else uses the fixed retry delay.
func (c *Client) doRequest(ctx context.Context, body []byte, attempt int) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", c.opts.RetryDelay, services.Wrap(services.ErrTimeout, "vision", "analyze", "request timed out", err)
		}
		return "", c.opts.RetryDelay, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.opts.RetryDelay, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", time.Duration(attempt) * c.opts.RateLimitStep,
			fmt.Errorf("rate limited (429)")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", c.opts.RetryDelay,
			fmt.Errorf("vision engine returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", c.opts.RetryDelay, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", c.opts.RetryDelay, errors.New("response carried no choices")
	}
	return parsed.Choices[0].Message.Content, 0, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// StripFence removes a Markdown code fence wrapping, with or without a
// language tag, returning the inner text unchanged otherwise.
func StripFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// DecodeJSON strips any code fence from the model reply and unmarshals the
// remaining JSON into v.
func DecodeJSON(reply string, v any) error {
	cleaned := StripFence(reply)
	if cleaned == "" {
		return errors.New("empty model reply")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("parse model reply: %w", err)
	}
	return nil
}
