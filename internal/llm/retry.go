// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// transient failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 3

// GenerateWithRetry calls gen.Generate and retries transient failures
// with exponential backoff: the delay starts at RetryBaseDelay and
// doubles each attempt. Content-filter refusals and other non-transient
// errors return immediately. When maxRetries is 0 the default (3) is
// used. If the context is cancelled during a backoff wait the function
// returns ctx.Err().
func GenerateWithRetry(ctx context.Context, gen Generator, prompt string, maxTokens, maxRetries int) (Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := gen.Generate(ctx, prompt, maxTokens)
		if err == nil {
			return resp, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return Response{}, err
		}
		lastErr = err

		if attempt >= maxRetries {
			return Response{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
