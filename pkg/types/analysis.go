// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Verdict is the hypothesis-acceptance decision produced by the analysis
// stage. Exactly one verdict is recorded per analysis.
type Verdict string

const (
	// VerdictAcceptStrong: significant result with an effect at or above
	// the configured minimum.
	VerdictAcceptStrong Verdict = "ACCEPT_STRONG"

	// VerdictAcceptWeak: significant result but the effect is below the
	// configured minimum.
	VerdictAcceptWeak Verdict = "ACCEPT_WEAK"

	// VerdictInconclusive: marginally significant; more data needed.
	VerdictInconclusive Verdict = "INCONCLUSIVE"

	// VerdictReject: insufficient evidence to support the hypothesis.
	VerdictReject Verdict = "REJECT"
)

// AnalysisStatus tracks whether an analysis is current or archived.
type AnalysisStatus string

const (
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisArchived  AnalysisStatus = "archived"
)

// ConfidenceInterval bounds an estimated effect at a given confidence level.
type ConfidenceInterval struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`

	// Level is the confidence level the interval was computed at (e.g. 0.95).
	Level float64 `json:"level" yaml:"level"`
}

// BaselineComparison records how a measured metric compares to a baseline
// declared in the experiment design.
type BaselineComparison struct {
	// Baseline names the compared baseline.
	Baseline string `json:"baseline" yaml:"baseline"`

	// Metric is the compared metric.
	Metric string `json:"metric" yaml:"metric"`

	// Expected is the baseline value from the design.
	Expected float64 `json:"expected" yaml:"expected"`

	// Measured is the value observed in the run.
	Measured float64 `json:"measured" yaml:"measured"`

	// Delta is Measured minus Expected.
	Delta float64 `json:"delta" yaml:"delta"`
}

// Analysis holds the statistical evaluation of an experiment run.
type Analysis struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// RunID is the analyzed experiment run.
	RunID string `json:"run_id" yaml:"run_id"`

	// ProjectID is the owning project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// HypothesisID references the hypothesis under test, when known.
	HypothesisID string `json:"hypothesis_id,omitempty" yaml:"hypothesis_id,omitempty"`

	// PValue is the two-sided p-value for the observed effect.
	PValue float64 `json:"p_value" yaml:"p_value"`

	// EffectSize is the standardized effect estimate.
	EffectSize float64 `json:"effect_size" yaml:"effect_size"`

	// Interval bounds the effect estimate.
	Interval ConfidenceInterval `json:"interval" yaml:"interval"`

	// Baselines compares measured metrics to the design's baselines.
	Baselines []BaselineComparison `json:"baselines,omitempty" yaml:"baselines,omitempty"`

	// Insights is model-generated interpretation of the results.
	Insights string `json:"insights,omitempty" yaml:"insights,omitempty"`

	// Conclusions summarizes the outcome in plain language.
	Conclusions string `json:"conclusions,omitempty" yaml:"conclusions,omitempty"`

	// Decision is the verdict produced by the decision engine.
	Decision Verdict `json:"decision" yaml:"decision"`

	// Status is completed or archived.
	Status AnalysisStatus `json:"status" yaml:"status"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
