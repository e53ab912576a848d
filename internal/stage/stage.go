// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stage implements the six pipeline stages behind a uniform
// Runner contract. Each stage reads its inputs from the artifact store,
// does its work, persists its outputs, and reports the artifact it
// produced plus the actual cost it incurred. Stages never write
// checkpoints for other stages and never retry themselves; that is the
// orchestrator's job.
package stage

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/research-pilot/internal/budget"
	"github.com/pdiddy/research-pilot/internal/llm"
	"github.com/pdiddy/research-pilot/internal/notes"
	"github.com/pdiddy/research-pilot/internal/scholar"
	"github.com/pdiddy/research-pilot/internal/store"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// Stage names, in pipeline order.
const (
	LiteratureReview    = "literature_review"
	IdeaGeneration      = "idea_generation"
	HypothesisFormation = "hypothesis_formation"
	ExperimentDesign    = "experiment_design"
	ExperimentExecution = "experiment_execution"
	ResultsAnalysis     = "results_analysis"
)

// Output reports what a stage produced.
type Output struct {
	// ArtifactID is the primary artifact the stage persisted.
	ArtifactID string

	// CostUSD is the actual cost the stage incurred, settled against the
	// budget ledger.
	CostUSD float64
}

// Runner is the contract every pipeline stage satisfies.
type Runner interface {
	// Name returns the stage's canonical name.
	Name() string

	// Run executes the stage for a project. A returned error means the
	// stage did not complete; any artifacts it already persisted remain.
	Run(ctx context.Context, projectID string) (Output, error)
}

// ValidationError marks model output that could not be parsed into the
// shape a stage requires. The stage retries the call once with a
// stricter prompt before giving up.
type ValidationError struct {
	Stage  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid model output: %s", e.Stage, e.Reason)
}

// Deps bundles the services a stage needs. The orchestrator constructs
// one Deps and shares it across all six runners.
type Deps struct {
	Store    *store.Store
	Guard    *budget.Guard
	Model    llm.Generator
	Papers   scholar.Searcher
	Notes    notes.Writer
	Config   types.PipelineConfig
	Progress io.Writer
}

func (d *Deps) logf(format string, args ...any) {
	if d.Progress != nil {
		fmt.Fprintf(d.Progress, format+"\n", args...)
	}
}

// generate performs one budget-guarded model call: reserve the estimate,
// call with retry, settle against the actual cost. A reservation refusal
// surfaces as budget.ErrBudgetExceeded and the call is never attempted.
func (d *Deps) generate(ctx context.Context, prompt string) (llm.Response, error) {
	estimate := d.Model.EstimateCost(prompt, d.Config.AI.MaxTokens)
	if err := d.Guard.Reserve(estimate); err != nil {
		return llm.Response{}, err
	}

	resp, genErr := llm.GenerateWithRetry(ctx, d.Model, prompt, d.Config.AI.MaxTokens, d.Config.AI.MaxRetries)

	// A failed call reports zero usage, so settling releases the whole
	// reservation.
	if err := d.Guard.Settle(estimate, resp.CostUSD); err != nil {
		return resp, fmt.Errorf("settling reservation: %w", err)
	}
	return resp, genErr
}

// generateValidated runs a budget-guarded model call and applies parse to
// the output. When parse reports a ValidationError the call is repeated
// exactly once with a stricter prompt; the retry consumes budget like any
// other call. Any second failure, and any non-validation failure, is
// returned as-is.
func (d *Deps) generateValidated(ctx context.Context, stageName, prompt string, parse func(text string) error) (float64, error) {
	resp, err := d.generate(ctx, prompt)
	cost := resp.CostUSD
	if err != nil {
		return cost, err
	}

	parseErr := parse(resp.Text)
	if parseErr == nil {
		return cost, nil
	}
	if !isValidation(parseErr) {
		return cost, parseErr
	}

	d.logf("%s: model output rejected (%v), requesting reformatted response", stageName, parseErr)
	retryPrompt := fmt.Sprintf(
		"%s\n\nYour previous response could not be used: %v.\nRespond with only the JSON described above. No prose, no code fences.",
		prompt, parseErr)

	resp, err = d.generate(ctx, retryPrompt)
	cost += resp.CostUSD
	if err != nil {
		return cost, err
	}
	return cost, parse(resp.Text)
}

// writeNote writes a stage summary into the note repository. Failures
// are logged and swallowed; notes are a side channel, not an output.
func (d *Deps) writeNote(projectID, stageName, title, body string) {
	if d.Notes == nil {
		return
	}
	doc := notes.Document(notes.Frontmatter{
		Project: projectID,
		Stage:   stageName,
		Created: nowUTC(),
		Tags:    []string{"research-pilot", stageName},
	}, title, body)
	path := fmt.Sprintf("%s/%s.md", projectID, stageName)
	if err := d.Notes.WriteDocument(path, doc); err != nil {
		d.logf("%s: note write failed: %v", stageName, err)
	}
}
