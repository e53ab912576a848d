// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ranking scores and orders candidate research ideas. The engine
// is a pure function: given the same ideas it always produces the same
// order, independent of map or slice iteration accidents.
package ranking

import (
	"fmt"
	"sort"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// Sub-score weights for the overall idea score.
const (
	NoveltyWeight     = 0.35
	FeasibilityWeight = 0.35
	ImpactWeight      = 0.30
)

// ScoreError reports an idea whose sub-score lies outside the 1-10 range.
type ScoreError struct {
	IdeaID string
	Field  string
	Value  float64
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("idea %s: %s score %.2f outside [%.0f,%.0f]",
		e.IdeaID, e.Field, e.Value, types.ScoreMin, types.ScoreMax)
}

// Overall computes the weighted combination of the three sub-scores.
func Overall(novelty, feasibility, impact float64) float64 {
	return NoveltyWeight*novelty + FeasibilityWeight*feasibility + ImpactWeight*impact
}

// validate checks every sub-score against the closed [1,10] range.
func validate(idea types.Idea) error {
	checks := []struct {
		field string
		value float64
	}{
		{"novelty", idea.Novelty},
		{"feasibility", idea.Feasibility},
		{"impact", idea.Impact},
	}
	for _, c := range checks {
		if c.value < types.ScoreMin || c.value > types.ScoreMax {
			return &ScoreError{IdeaID: idea.ID, Field: c.field, Value: c.value}
		}
	}
	return nil
}

// Rank validates sub-scores, computes each idea's overall score, and
// returns a new slice ordered best first: descending overall, then
// descending novelty, then earlier creation, then original input order.
// The input slice is not modified.
func Rank(ideas []types.Idea) ([]types.Idea, error) {
	ranked := make([]types.Idea, len(ideas))
	for i, idea := range ideas {
		if err := validate(idea); err != nil {
			return nil, err
		}
		idea.Overall = Overall(idea.Novelty, idea.Feasibility, idea.Impact)
		ranked[i] = idea
	}

	// SliceStable keeps input order as the final tie break.
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Overall != b.Overall {
			return a.Overall > b.Overall
		}
		if a.Novelty != b.Novelty {
			return a.Novelty > b.Novelty
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return false
	})

	return ranked, nil
}
