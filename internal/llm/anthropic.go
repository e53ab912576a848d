// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// AnthropicClient implements Generator over the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	timeout   time.Duration
	maxTokens int
}

// NewAnthropicClient builds a client from the AI configuration.
func NewAnthropicClient(cfg types.AIConfig) *AnthropicClient {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate sends one prompt and returns the text plus actual usage and
// cost. The configured per-call timeout bounds the request.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, maxTokens int) (Response, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Response{}, classify(err)
	}

	if msg.StopReason == "refusal" {
		return Response{}, &ContentFilterError{Reason: "safety refusal"}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	resp := Response{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	resp.CostUSD = CostForUsage(resp.InputTokens, resp.OutputTokens)
	return resp, nil
}

// EstimateCost predicts the call cost assuming the full output budget is
// used.
func (c *AnthropicClient) EstimateCost(prompt string, maxTokens int) float64 {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	return CostForUsage(estimateTokens(prompt), maxTokens)
}

// classify maps SDK and network failures onto the package's error
// taxonomy. Rate limits, server errors, and timeouts are transient;
// everything else is passed through.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429 || apierr.StatusCode >= 500:
			return &TransientError{Err: err}
		default:
			return fmt.Errorf("model service request failed: %w", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return fmt.Errorf("model service request failed: %w", err)
}
