// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// Executor runs a designed experiment on some platform and reports the
// measured results plus the compute cost.
type Executor interface {
	// Platform names the execution environment.
	Platform() string

	// Execute runs the design to completion. Must be safe to call again
	// with the same design after an interrupted attempt.
	Execute(ctx context.Context, design types.ExperimentDesign) (types.RunResults, float64, error)
}

// Execute runs the most recent ready design through the configured
// executor, recording run checkpoints at each step boundary. A run left
// in the running state by an interrupted process is picked up and
// finished rather than restarted.
type Execute struct {
	deps *Deps
	exec Executor
}

// NewExecute builds the experiment execution stage.
func NewExecute(d *Deps, exec Executor) *Execute {
	return &Execute{deps: d, exec: exec}
}

// Name implements Runner.
func (s *Execute) Name() string { return ExperimentExecution }

// Run implements Runner.
func (s *Execute) Run(ctx context.Context, projectID string) (Output, error) {
	d := s.deps

	designs, err := d.Store.ListDesigns(ctx, projectID, types.DesignReady)
	if err != nil {
		return Output{}, fmt.Errorf("loading designs: %w", err)
	}
	if len(designs) == 0 {
		return Output{}, fmt.Errorf("no ready design for project %s", projectID)
	}
	design := designs[len(designs)-1]

	run, resumed, err := s.openRun(ctx, projectID, design)
	if err != nil {
		return Output{}, err
	}
	if resumed {
		d.logf("%s: resuming run %s", ExperimentExecution, run.ID)
	}

	done := make(map[string]bool)
	if resumed {
		checkpoints, err := d.Store.ListRunCheckpoints(ctx, run.ID)
		if err != nil {
			return Output{}, fmt.Errorf("loading run checkpoints: %w", err)
		}
		for _, cp := range checkpoints {
			done[cp.Step] = true
		}
	}

	if !done["prepare"] {
		_, err := d.Store.AppendRunCheckpoint(ctx, run.ID, "prepare", map[string]any{
			"design_id": design.ID,
			"platform":  s.exec.Platform(),
		})
		if err != nil {
			return Output{}, fmt.Errorf("checkpointing prepare: %w", err)
		}
	}

	// Execution cost is governed like any other paid external call.
	estimate := design.Resources.EstimatedCostUSD
	if estimate > 0 {
		if err := d.Guard.Reserve(estimate); err != nil {
			return Output{}, err
		}
	}

	results, cost, execErr := s.exec.Execute(ctx, design)
	if estimate > 0 {
		if err := d.Guard.Settle(estimate, cost); err != nil {
			return Output{}, fmt.Errorf("settling reservation: %w", err)
		}
	}
	if execErr != nil {
		run.Status = types.RunFailed
		run.Error = execErr.Error()
		run.CompletedAt = nowUTC()
		run.UpdatedAt = run.CompletedAt
		if putErr := d.Store.PutRun(ctx, run); putErr != nil {
			return Output{}, fmt.Errorf("recording failed run: %w", putErr)
		}
		return Output{}, fmt.Errorf("executing design %s: %w", design.ID, execErr)
	}

	if !done["execute"] {
		_, err := d.Store.AppendRunCheckpoint(ctx, run.ID, "execute", map[string]any{
			"sample_size":    results.SampleSize,
			"effect_mean":    results.EffectMean,
			"effect_std_dev": results.EffectStdDev,
		})
		if err != nil {
			return Output{}, fmt.Errorf("checkpointing execute: %w", err)
		}
	}
	if !done["collect"] {
		snapshot := make(map[string]any, len(results.Metrics))
		for name, v := range results.Metrics {
			snapshot[name] = v
		}
		if _, err := d.Store.AppendRunCheckpoint(ctx, run.ID, "collect", snapshot); err != nil {
			return Output{}, fmt.Errorf("checkpointing collect: %w", err)
		}
	}

	run.Status = types.RunCompleted
	run.Results = &results
	run.CostUSD = cost
	run.CompletedAt = nowUTC()
	run.UpdatedAt = run.CompletedAt
	if err := d.Store.PutRun(ctx, run); err != nil {
		return Output{}, fmt.Errorf("completing run: %w", err)
	}

	d.logf("%s: run %s completed (n=%d, cost $%.2f)", ExperimentExecution,
		run.ID, results.SampleSize, cost)
	d.writeNote(projectID, ExperimentExecution, "Experiment Run",
		fmt.Sprintf("Run `%s` on %s completed with %d samples.\n",
			run.ID, run.Platform, results.SampleSize))

	return Output{ArtifactID: run.ID, CostUSD: cost}, nil
}

// openRun returns an in-flight run for the design if one exists,
// otherwise creates a fresh run and moves it to running.
func (s *Execute) openRun(ctx context.Context, projectID string, design types.ExperimentDesign) (types.ExperimentRun, bool, error) {
	d := s.deps

	running, err := d.Store.ListRuns(ctx, projectID, types.RunRunning)
	if err != nil {
		return types.ExperimentRun{}, false, fmt.Errorf("loading runs: %w", err)
	}
	for _, r := range running {
		if r.DesignID == design.ID {
			return r, true, nil
		}
	}

	now := nowUTC()
	run := types.ExperimentRun{
		ID:        uuid.NewString(),
		DesignID:  design.ID,
		ProjectID: projectID,
		Platform:  s.exec.Platform(),
		Status:    types.RunPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.Store.PutRun(ctx, run); err != nil {
		return types.ExperimentRun{}, false, fmt.Errorf("creating run: %w", err)
	}

	run.Status = types.RunRunning
	run.StartedAt = nowUTC()
	run.UpdatedAt = run.StartedAt
	if err := d.Store.PutRun(ctx, run); err != nil {
		return types.ExperimentRun{}, false, fmt.Errorf("starting run: %w", err)
	}
	return run, false, nil
}

// SimulatedExecutor produces synthetic but plausible results without any
// real compute. Results are a pure function of the design, so re-running
// an interrupted execution converges on identical output.
type SimulatedExecutor struct{}

// Platform implements Executor.
func (SimulatedExecutor) Platform() string { return "simulated" }

// Execute implements Executor. The RNG is seeded from the design ID, so
// the same design always yields the same results.
func (SimulatedExecutor) Execute(_ context.Context, design types.ExperimentDesign) (types.RunResults, float64, error) {
	h := fnv.New64a()
	h.Write([]byte(design.ID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	sampleSize := 200
	for _, ds := range design.Datasets {
		if ds.MinSamples > sampleSize {
			sampleSize = ds.MinSamples
		}
	}

	results := types.RunResults{
		Metrics:      make(map[string]float64),
		SampleSize:   sampleSize,
		EffectMean:   0.1 + rng.Float64()*0.7,
		EffectStdDev: 0.5 + rng.Float64()*0.5,
	}
	for _, b := range design.Baselines {
		// Measured value hovers around the baseline expectation with a
		// mild positive bias.
		results.Metrics[b.Metric] = b.Expected * (1 + (rng.Float64()-0.4)*0.2)
	}
	if len(results.Metrics) == 0 {
		results.Metrics["effect"] = results.EffectMean
	}

	return results, 0, nil
}
