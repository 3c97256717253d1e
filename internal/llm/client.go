// Package llm wraps the Anthropic chat API behind a small Completer
// interface so the extraction, synthesis, and post pipelines can be tested
// without network access.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"golang.org/x/time/rate"
)

// Usage is a rough token estimate for a completion. The API's own counts
// are not surfaced by the client, so we estimate at four characters per
// token, which is close enough for budget logging.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Completion is one model response.
type Completion struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Completer produces a completion for a system and user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
}

// Client calls Anthropic with a shared rate limiter. All pipeline stages
// funnel through one Client so the per-second budget holds globally.
type Client struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	limiter     *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens overrides the default response token cap.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithRateLimit caps requests per second. Zero or negative disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		} else {
			c.limiter = nil
		}
	}
}

// NewClient creates a Client. The API key is required.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	c := &Client{
		apiKey:      apiKey,
		model:       "claude-sonnet-4-20250514",
		maxTokens:   4096,
		temperature: 1.0,
		limiter:     rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends one prompt and returns the text of the first content block.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	settings := types.RequestSettings{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	response, err := anthropic.PromptWithSettings(system, user, "", c.apiKey, settings)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	if len(response.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned no content blocks")
	}

	content := response.Content[0].Text
	return &Completion{
		Content: content,
		Model:   c.model,
		Usage: Usage{
			InputTokens:  estimateTokens(system) + estimateTokens(user),
			OutputTokens: estimateTokens(content),
		},
	}, nil
}

// estimateTokens approximates token count at 4 characters per token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
