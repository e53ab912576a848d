// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates the six research stages as a state
// machine over durable checkpoints. The orchestrator owns stage
// sequencing, resume, and pipeline-run bookkeeping; the stages own their
// semantics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/internal/budget"
	"github.com/pdiddy/research-pilot/internal/stage"
	"github.com/pdiddy/research-pilot/internal/store"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// StageOrder is the canonical stage sequence.
var StageOrder = []string{
	stage.LiteratureReview,
	stage.IdeaGeneration,
	stage.HypothesisFormation,
	stage.ExperimentDesign,
	stage.ExperimentExecution,
	stage.ResultsAnalysis,
}

// Result summarizes one orchestrator execution.
type Result struct {
	// RunID is the pipeline-run record, empty when there was nothing
	// left to do.
	RunID string

	// StagesRun lists the stages executed this time, in order.
	StagesRun []string

	// TotalCostUSD is the sum of actual stage costs for this execution.
	TotalCostUSD float64

	// Completed reports whether the project has now passed all stages.
	Completed bool
}

// Pipeline drives a project through the stage sequence.
type Pipeline struct {
	deps   *stage.Deps
	stages []stage.Runner
}

// New wires the six runners in order over a shared dependency set.
func New(deps *stage.Deps, executor stage.Executor) *Pipeline {
	return &Pipeline{
		deps: deps,
		stages: []stage.Runner{
			stage.NewLiterature(deps),
			stage.NewIdeas(deps),
			stage.NewHypothesis(deps),
			stage.NewDesign(deps),
			stage.NewExecute(deps, executor),
			stage.NewAnalysis(deps),
		},
	}
}

// Run executes the stage sequence for a project, resuming after the last
// durably checkpointed stage. A stage failure marks the pipeline run
// failed and halts; the failed stage is never retried within the run.
// Cancellation is honored at stage boundaries only.
func (p *Pipeline) Run(ctx context.Context, projectID string) (Result, error) {
	d := p.deps

	logf := func(format string, args ...any) {
		if d.Progress != nil {
			fmt.Fprintf(d.Progress, format+"\n", args...)
		}
	}

	if _, err := d.Store.GetProject(ctx, projectID); err != nil {
		return Result{}, fmt.Errorf("loading project: %w", err)
	}

	start, err := p.resumeIndex(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	if start >= len(p.stages) {
		logf("pipeline: project %s already completed all stages", projectID)
		return Result{Completed: true}, nil
	}
	if start > 0 {
		logf("pipeline: resuming at stage %s", p.stages[start].Name())
	}

	run, err := p.openRun(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	result := Result{RunID: run.ID}

	for i := start; i < len(p.stages); i++ {
		if err := ctx.Err(); err != nil {
			return result, p.fail(ctx, run, result, err)
		}

		// Stages reserve per call, but an already-exhausted ledger halts
		// the run before any stage work starts.
		remaining, err := d.Guard.Remaining()
		if err != nil {
			return result, p.fail(ctx, run, result, fmt.Errorf("checking budget headroom: %w", err))
		}
		if remaining <= 0 {
			return result, p.fail(ctx, run, result,
				fmt.Errorf("no budget headroom before stage %s: %w", p.stages[i].Name(), budget.ErrBudgetExceeded))
		}

		runner := p.stages[i]
		logf("pipeline: stage %d/%d %s", i+1, len(p.stages), runner.Name())

		out, err := runner.Run(ctx, projectID)
		if err != nil {
			return result, p.fail(ctx, run, result, fmt.Errorf("stage %s: %w", runner.Name(), err))
		}

		// The checkpoint must be durable before the stage counts as done,
		// even when cancellation raced the stage's completion.
		if _, err := d.Store.AppendStageCheckpoint(context.WithoutCancel(ctx), projectID, runner.Name(), out.ArtifactID); err != nil {
			return result, p.fail(ctx, run, result, fmt.Errorf("checkpointing %s: %w", runner.Name(), err))
		}

		result.StagesRun = append(result.StagesRun, runner.Name())
		result.TotalCostUSD += out.CostUSD

		run.TotalCostUSD = result.TotalCostUSD
		run.UpdatedAt = nowUTC()
		if err := d.Store.PutPipelineRun(context.WithoutCancel(ctx), run); err != nil {
			return result, fmt.Errorf("updating pipeline run: %w", err)
		}
	}

	run.Status = types.PipelineCompleted
	run.CompletedAt = nowUTC()
	run.UpdatedAt = run.CompletedAt
	if err := d.Store.PutPipelineRun(ctx, run); err != nil {
		return result, fmt.Errorf("completing pipeline run: %w", err)
	}

	result.Completed = true
	logf("pipeline: completed %d stages, total cost $%.2f", len(result.StagesRun), result.TotalCostUSD)
	return result, nil
}

// resumeIndex returns the index of the first stage still to run,
// determined by the latest durable stage checkpoint.
func (p *Pipeline) resumeIndex(ctx context.Context, projectID string) (int, error) {
	cp, err := p.deps.Store.LatestStageCheckpoint(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading stage checkpoint: %w", err)
	}
	for i, name := range StageOrder {
		if name == cp.Stage {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("checkpoint names unknown stage %q", cp.Stage)
}

func (p *Pipeline) openRun(ctx context.Context, projectID string) (types.PipelineRun, error) {
	now := nowUTC()
	run := types.PipelineRun{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    types.PipelinePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.deps.Store.PutPipelineRun(ctx, run); err != nil {
		return types.PipelineRun{}, fmt.Errorf("creating pipeline run: %w", err)
	}

	run.Status = types.PipelineRunning
	run.StartedAt = nowUTC()
	run.UpdatedAt = run.StartedAt
	if err := p.deps.Store.PutPipelineRun(ctx, run); err != nil {
		return types.PipelineRun{}, fmt.Errorf("starting pipeline run: %w", err)
	}
	return run, nil
}

// fail records the terminal failure on the run and returns the original
// error, annotated if the failure could not be persisted. The write uses
// a detached context so a cancelled run still gets recorded.
func (p *Pipeline) fail(ctx context.Context, run types.PipelineRun, result Result, cause error) error {
	run.Status = types.PipelineFailed
	run.Error = cause.Error()
	run.TotalCostUSD = result.TotalCostUSD
	run.CompletedAt = nowUTC()
	run.UpdatedAt = run.CompletedAt
	if err := p.deps.Store.PutPipelineRun(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	return cause
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
