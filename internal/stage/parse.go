// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// extractJSON pulls the first JSON object or array out of model output.
// Models wrap JSON in prose or code fences often enough that taking the
// outermost bracket pair is the reliable move.
func extractJSON(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closing := byte('}')
	if text[start] == '[' {
		closing = byte(']')
	}
	end := strings.LastIndexByte(text, closing)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeJSON extracts and unmarshals a JSON payload from model output,
// reporting failures as ValidationErrors so the caller gets one repair
// attempt.
func decodeJSON(stageName, text string, v any) error {
	payload, ok := extractJSON(text)
	if !ok {
		return &ValidationError{Stage: stageName, Reason: "no JSON found in response"}
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &ValidationError{Stage: stageName, Reason: "unparseable JSON: " + err.Error()}
	}
	return nil
}

func isValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// scoreInRange checks a model-reported score against the 1-10 scale.
func scoreInRange(v float64) bool {
	return v >= types.ScoreMin && v <= types.ScoreMax
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
