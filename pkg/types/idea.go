// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Score bounds for idea sub-scores and paper relevance.
const (
	ScoreMin = 1.0
	ScoreMax = 10.0
)

// Idea is a candidate research direction generated from the literature.
// Sub-scores are on a 1-10 scale; Overall is the weighted combination
// computed by the ranking engine, never taken from model output.
type Idea struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// ProjectID is the owning project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// Title is a short name for the idea.
	Title string `json:"title" yaml:"title"`

	// Summary describes the idea and the gap it addresses.
	Summary string `json:"summary" yaml:"summary"`

	// Novelty rates how original the idea is, 1-10.
	Novelty float64 `json:"novelty" yaml:"novelty"`

	// Feasibility rates how practical the idea is to execute, 1-10.
	Feasibility float64 `json:"feasibility" yaml:"feasibility"`

	// Impact rates the potential significance of the result, 1-10.
	Impact float64 `json:"impact" yaml:"impact"`

	// Overall is the weighted combination of the three sub-scores.
	Overall float64 `json:"overall" yaml:"overall"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
