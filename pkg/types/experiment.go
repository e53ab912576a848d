// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// DesignStatus tracks an experiment design's readiness.
type DesignStatus string

const (
	DesignDesigned DesignStatus = "designed"
	DesignReady    DesignStatus = "ready"
	DesignArchived DesignStatus = "archived"
)

// DatasetSpec describes a dataset required by an experiment design.
type DatasetSpec struct {
	// Name identifies the dataset (e.g. "GLUE", "synthetic-regression").
	Name string `json:"name" yaml:"name"`

	// Description explains what the dataset provides.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// MinSamples is the minimum sample count required for the analysis.
	MinSamples int `json:"min_samples" yaml:"min_samples"`
}

// BaselineSpec names a comparison point for the experiment.
type BaselineSpec struct {
	// Name identifies the baseline (e.g. "logistic-regression").
	Name string `json:"name" yaml:"name"`

	// Metric is the metric the baseline is compared on.
	Metric string `json:"metric" yaml:"metric"`

	// Expected is the baseline's expected value for the metric.
	Expected float64 `json:"expected" yaml:"expected"`
}

// ResourceEstimate sizes the compute needed for an experiment.
type ResourceEstimate struct {
	// ComputeHours is the estimated wall-clock compute in hours.
	ComputeHours float64 `json:"compute_hours" yaml:"compute_hours"`

	// MemoryGB is the estimated peak memory in gigabytes.
	MemoryGB float64 `json:"memory_gb" yaml:"memory_gb"`

	// EstimatedCostUSD is the estimated monetary cost.
	EstimatedCostUSD float64 `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
}

// ExperimentDesign is a concrete plan for testing exactly one hypothesis.
type ExperimentDesign struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// HypothesisID is the hypothesis this design tests.
	HypothesisID string `json:"hypothesis_id" yaml:"hypothesis_id"`

	// ProjectID is the owning project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// Methodology describes the experimental procedure.
	Methodology string `json:"methodology" yaml:"methodology"`

	// Datasets lists the data requirements.
	Datasets []DatasetSpec `json:"datasets" yaml:"datasets"`

	// Baselines lists the comparison points.
	Baselines []BaselineSpec `json:"baselines,omitempty" yaml:"baselines,omitempty"`

	// Resources is the compute and cost estimate.
	Resources ResourceEstimate `json:"resources" yaml:"resources"`

	// Status is designed, ready, or archived.
	Status DesignStatus `json:"status" yaml:"status"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RunStatus tracks an experiment run's lifecycle.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunResults holds the measured outputs of an experiment run, including
// the sample statistics the analysis stage needs for interval estimation.
type RunResults struct {
	// Metrics maps metric name to measured value.
	Metrics map[string]float64 `json:"metrics" yaml:"metrics"`

	// SampleSize is the number of samples processed.
	SampleSize int `json:"sample_size" yaml:"sample_size"`

	// EffectMean is the observed mean effect across samples.
	EffectMean float64 `json:"effect_mean" yaml:"effect_mean"`

	// EffectStdDev is the sample standard deviation of the effect.
	EffectStdDev float64 `json:"effect_std_dev" yaml:"effect_std_dev"`
}

// ExperimentRun is one execution of an experiment design.
type ExperimentRun struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// DesignID is the executed design.
	DesignID string `json:"design_id" yaml:"design_id"`

	// ProjectID is the owning project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// Platform names the execution environment (e.g. "simulated", "local").
	Platform string `json:"platform" yaml:"platform"`

	// Status is pending, running, completed, or failed.
	Status RunStatus `json:"status" yaml:"status"`

	// StartedAt is when execution began. Zero until the run starts.
	StartedAt time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`

	// CompletedAt is when execution ended. Never earlier than StartedAt.
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	// Results holds the measured outputs. Nil until the run completes.
	Results *RunResults `json:"results,omitempty" yaml:"results,omitempty"`

	// CostUSD is the compute cost of the run. Never negative.
	CostUSD float64 `json:"cost_usd" yaml:"cost_usd"`

	// Error records a failure message. Empty on success.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RunCheckpoint is one entry in an experiment run's append-only audit
// trail. Checkpoints are only appended and read, never edited; the store
// orders them by an auto-incrementing sequence.
type RunCheckpoint struct {
	// Seq is the store-assigned sequence number.
	Seq int64 `json:"seq" yaml:"seq"`

	// RunID is the owning experiment run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Step labels the execution step that completed (e.g. "prepare").
	Step string `json:"step" yaml:"step"`

	// Snapshot is a partial-results payload captured at the step boundary.
	Snapshot map[string]any `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
