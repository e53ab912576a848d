// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HypothesisStatus tracks a hypothesis through testing.
type HypothesisStatus string

const (
	HypothesisFormulated HypothesisStatus = "formulated"
	HypothesisTested     HypothesisStatus = "tested"
	HypothesisValidated  HypothesisStatus = "validated"
	HypothesisRejected   HypothesisStatus = "rejected"
)

// MetricSpec names a measurable outcome and how it is evaluated.
type MetricSpec struct {
	// Name is the metric identifier (e.g. "accuracy").
	Name string `json:"name" yaml:"name"`

	// Description explains what the metric measures.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Target is an optional goal value for the metric.
	Target float64 `json:"target,omitempty" yaml:"target,omitempty"`
}

// Hypothesis is a testable statement derived from a ranked idea.
type Hypothesis struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// ProjectID is the owning project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// IdeaID links the hypothesis to the idea it was formed from.
	// Empty when the hypothesis was supplied directly.
	IdeaID string `json:"idea_id,omitempty" yaml:"idea_id,omitempty"`

	// Title is a short name for the hypothesis.
	Title string `json:"title" yaml:"title"`

	// Statement is the alternative hypothesis in plain language.
	Statement string `json:"statement" yaml:"statement"`

	// NullStatement is the corresponding null hypothesis.
	NullStatement string `json:"null_statement" yaml:"null_statement"`

	// IndependentVars lists the manipulated variables. Must be non-empty.
	IndependentVars []string `json:"independent_vars" yaml:"independent_vars"`

	// DependentVars lists the measured outcome variables. Must be non-empty.
	DependentVars []string `json:"dependent_vars" yaml:"dependent_vars"`

	// ControlVars lists held-constant factors.
	ControlVars []string `json:"control_vars,omitempty" yaml:"control_vars,omitempty"`

	// Metrics lists the outcome metrics used to evaluate the hypothesis.
	Metrics []MetricSpec `json:"metrics" yaml:"metrics"`

	// Status is formulated, tested, validated, or rejected.
	Status HypothesisStatus `json:"status" yaml:"status"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
