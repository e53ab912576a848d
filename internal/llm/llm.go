// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm abstracts the generative language-model service behind a
// small Generator interface so stages can be tested with mocks. The
// Anthropic implementation reports token usage and the actual call cost;
// transient failures and content-filter refusals surface as typed errors
// so stage retry logic can tell them apart.
package llm

import (
	"context"
	"fmt"
)

// Response is the structured result of one generation call.
type Response struct {
	// Text is the model's output.
	Text string

	// InputTokens and OutputTokens are the token counts the service
	// reported for the call.
	InputTokens  int
	OutputTokens int

	// CostUSD is the actual cost of the call.
	CostUSD float64
}

// Generator is the language-model service consumed by the stages.
type Generator interface {
	// Generate sends a prompt and returns the model's text plus usage.
	Generate(ctx context.Context, prompt string, maxTokens int) (Response, error)

	// EstimateCost predicts the cost of a call before it is made, for
	// budget reservation. The estimate assumes the full output budget is
	// consumed.
	EstimateCost(prompt string, maxTokens int) float64
}

// TransientError marks a failure worth retrying: network errors,
// timeouts, rate limits, service overload.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient model service error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ContentFilterError marks a refusal by the service's safety layer. Not
// retryable with the same prompt.
type ContentFilterError struct {
	Reason string
}

func (e *ContentFilterError) Error() string {
	return fmt.Sprintf("model refused to generate: %s", e.Reason)
}

// Pricing per million tokens. Claude Sonnet rates; the defaults match
// the models the pipeline is configured with.
const (
	inputCostPerMTok  = 3.0
	outputCostPerMTok = 15.0
)

// CostForUsage computes the call cost from reported token counts.
func CostForUsage(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*inputCostPerMTok + float64(outputTokens)/1e6*outputCostPerMTok
}

// estimateTokens approximates the token count of a prompt. Four
// characters per token is close enough for budget reservation; the
// reservation is settled against actual usage afterwards.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
