// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PipelineStatus tracks one orchestrator execution of the stage sequence.
type PipelineStatus string

const (
	PipelinePending   PipelineStatus = "pending"
	PipelineRunning   PipelineStatus = "running"
	PipelineCompleted PipelineStatus = "completed"
	PipelineFailed    PipelineStatus = "failed"
)

// PipelineRun is one execution attempt of the full stage sequence for a
// project. A failed run retains its last checkpoint so the pipeline can
// resume from the stage after it.
type PipelineRun struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// ProjectID is the project the run belongs to.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// Status is pending, running, completed, or failed.
	Status PipelineStatus `json:"status" yaml:"status"`

	// StartedAt is when the run began executing stages.
	StartedAt time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	// Error records the failing stage's error text. Empty on success.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// TotalCostUSD is the sum of actual costs reported by the stages that
	// ran, in order. This is the figure the budget guard tracks.
	TotalCostUSD float64 `json:"total_cost_usd" yaml:"total_cost_usd"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// StageCheckpoint is a durable marker that a pipeline stage completed for a
// project. The orchestrator writes one after every successful stage and
// reads the latest on resume.
type StageCheckpoint struct {
	// Seq is the store-assigned sequence number.
	Seq int64 `json:"seq" yaml:"seq"`

	// ProjectID is the project the checkpoint belongs to.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// Stage is the name of the completed stage.
	Stage string `json:"stage" yaml:"stage"`

	// ArtifactID is the artifact the stage produced.
	ArtifactID string `json:"artifact_id,omitempty" yaml:"artifact_id,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
