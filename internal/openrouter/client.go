package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/core"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// parseContent parses API content that may be string, null, or array of parts (e.g. [{"type":"text","text":"..."}]).
func parseContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []map[string]interface{}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if typ, ok := p["type"].(string); ok && typ != "text" {
			continue
		}
		if t, ok := p["text"].(string); ok {
			b.WriteString(t)
		}
	}
	return b.String()
}

// Message represents a chat message (OpenRouter/OpenAI format).
type Message = core.Message

type providerPrefs struct {
	Ignore []string `json:"ignore,omitempty"`
}

// ChatRequest is the request body for chat completions, with optional tools.
type ChatRequest struct {
	Model      string           `json:"model"`
	Messages   []Message        `json:"messages"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice interface{}      `json:"tool_choice,omitempty"` // "auto" or object
	Provider   *providerPrefs   `json:"provider,omitempty"`
}

// ChatResponse includes tool_calls in the choice message.
type ChatResponse struct {
	Provider string `json:"provider,omitempty"`
	Choices  []struct {
		Message struct {
			Content   json.RawMessage `json:"content"`
			Role      string          `json:"role"`
			ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client calls an OpenAI-compatible chat completions endpoint (OpenRouter by default).
type Client struct {
	APIKey    string
	Model     string
	BaseURL   string
	ConfigDir string // provider failure cooldowns are kept here when set
	HTTP      *http.Client

	MaxRetries int
	Backoff    time.Duration

	health *Health
	log    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.BaseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.HTTP = h } }

func WithConfigDir(dir string) Option { return func(c *Client) { c.ConfigDir = dir } }

func WithRetry(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.MaxRetries = max
		c.Backoff = backoff
	}
}

// NewClient creates a client with the given API key and model.
func NewClient(apiKey, model string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    DefaultBaseURL,
		HTTP:       &http.Client{Timeout: 90 * time.Second},
		MaxRetries: 3,
		Backoff:    time.Second,
		health:     &Health{},
		log:        log.With().Str("component", "openrouter").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ChatCompletion sends messages and returns the assistant reply content.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	content, _, err := c.complete(ctx, ChatRequest{Model: c.Model, Messages: messages})
	return content, err
}

func (c *Client) complete(ctx context.Context, body ChatRequest) (string, []ToolCall, error) {
	if c.APIKey == "" {
		return "", nil, fmt.Errorf("%w: openrouter: API key not set", core.ErrModelUnavailable)
	}
	if c.Model == "" {
		return "", nil, fmt.Errorf("%w: openrouter: model not set", core.ErrModelUnavailable)
	}
	if blocked, err := LoadBlockedProviders(c.ConfigDir, c.Model); err != nil {
		c.log.Warn().Err(err).Msg("could not read provider failures")
	} else if len(blocked) > 0 {
		body.Provider = &providerPrefs{Ignore: blocked}
	}

	bodyBytes, status, err := c.post(ctx, body)
	if err != nil {
		c.health.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
	}

	var out ChatResponse
	decodeErr := json.Unmarshal(bodyBytes, &out)
	if status != http.StatusOK {
		err := fmt.Errorf("openrouter: HTTP %d: %s", status, truncate(string(bodyBytes), 300))
		c.recordProviderFailure(out.Provider)
		c.health.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
	}
	if decodeErr != nil {
		err := fmt.Errorf("openrouter: decode: %w", decodeErr)
		c.health.RecordError(err)
		return "", nil, err
	}
	if out.Error != nil {
		err := fmt.Errorf("openrouter: %s", out.Error.Message)
		c.recordProviderFailure(out.Provider)
		c.health.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
	}
	if len(out.Choices) == 0 {
		err := fmt.Errorf("openrouter: no choices in response (body: %s)", truncate(string(bodyBytes), 300))
		c.health.RecordError(err)
		return "", nil, err
	}
	c.health.RecordSuccess()
	msg := out.Choices[0].Message
	return parseContent(msg.Content), msg.ToolCalls, nil
}

// post sends body with exponential backoff on network errors, 429 and 5xx.
func (c *Client) post(ctx context.Context, body ChatRequest) ([]byte, int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	backoff := c.Backoff
	var lastErr error
	var status int
	var bodyBytes []byte
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying")
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(raw))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("X-Title", "toolpilot")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Msg("network error")
			continue
		}
		bodyBytes, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		status = resp.StatusCode
		lastErr = nil

		if status >= 500 || status == http.StatusTooManyRequests {
			c.log.Warn().Int("status", status).Msg("retryable error")
			continue
		}
		break
	}
	if lastErr != nil {
		return nil, 0, fmt.Errorf("openrouter: request failed after %d retries: %w", c.MaxRetries, lastErr)
	}
	return bodyBytes, status, nil
}

func (c *Client) recordProviderFailure(provider string) {
	if provider == "" || c.ConfigDir == "" {
		return
	}
	if err := RecordProviderFailure(c.ConfigDir, c.Model, provider, time.Now().Add(DefaultProviderCooldown)); err != nil {
		c.log.Warn().Err(err).Str("provider", provider).Msg("could not record provider failure")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
