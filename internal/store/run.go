// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/research-pilot/pkg/types"
)

var runTransitions = map[string][]string{
	string(types.RunPending): {string(types.RunRunning), string(types.RunFailed)},
	string(types.RunRunning): {string(types.RunCompleted), string(types.RunFailed)},
	string(types.RunCompleted): {},
	string(types.RunFailed):    {},
}

var analysisTransitions = map[string][]string{
	string(types.AnalysisCompleted): {string(types.AnalysisArchived)},
	string(types.AnalysisArchived):  {},
}

var pipelineTransitions = map[string][]string{
	string(types.PipelinePending): {string(types.PipelineRunning), string(types.PipelineFailed)},
	string(types.PipelineRunning): {string(types.PipelineCompleted), string(types.PipelineFailed)},
	string(types.PipelineCompleted): {},
	string(types.PipelineFailed):    {},
}

// PutRun inserts or fully replaces an experiment run. The owning design
// and project must exist, status changes must follow the run lifecycle,
// the cost must be non-negative, and a completion time must not precede
// the start time.
func (s *Store) PutRun(ctx context.Context, r types.ExperimentRun) error {
	if err := s.requireParent("experiment_designs", r.DesignID); err != nil {
		return err
	}
	if err := s.requireParent("projects", r.ProjectID); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = types.RunPending
	}
	if err := s.checkTransition("experiment_runs", r.ID, string(r.Status), runTransitions); err != nil {
		return err
	}
	if r.CostUSD < 0 {
		return fmt.Errorf("run %s: negative cost %.4f", r.ID, r.CostUSD)
	}
	if !r.StartedAt.IsZero() && !r.CompletedAt.IsZero() && r.CompletedAt.Before(r.StartedAt) {
		return fmt.Errorf("run %s: completed_at precedes started_at", r.ID)
	}

	now := nowUTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO experiment_runs
		 (id, design_id, project_id, platform, status, started_at, completed_at,
		  results, cost_usd, error, created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DesignID, r.ProjectID, r.Platform, string(r.Status),
		formatTime(r.StartedAt), formatTime(r.CompletedAt),
		marshalJSON(r.Results), r.CostUSD, r.Error,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), marshalJSON(r.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun fetches an experiment run by id.
func (s *Store) GetRun(ctx context.Context, id string) (types.ExperimentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, design_id, project_id, platform, status, started_at, completed_at,
		        results, cost_usd, error, created_at, updated_at, metadata
		 FROM experiment_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ExperimentRun{}, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.ExperimentRun{}, fmt.Errorf("reading run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns a project's experiment runs, optionally filtered by
// status, newest first.
func (s *Store) ListRuns(ctx context.Context, projectID string, status types.RunStatus) ([]types.ExperimentRun, error) {
	query := `SELECT id, design_id, project_id, platform, status, started_at, completed_at,
		results, cost_usd, error, created_at, updated_at, metadata
		FROM experiment_runs WHERE project_id = ? ORDER BY created_at DESC`
	args := []any{projectID}
	if status != "" {
		query = `SELECT id, design_id, project_id, platform, status, started_at, completed_at,
			results, cost_usd, error, created_at, updated_at, metadata
			FROM experiment_runs WHERE project_id = ? AND status = ? ORDER BY created_at DESC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []types.ExperimentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (types.ExperimentRun, error) {
	var r types.ExperimentRun
	var status, startedAt, completedAt, results, createdAt, updatedAt, metadata string
	err := row.Scan(&r.ID, &r.DesignID, &r.ProjectID, &r.Platform, &status,
		&startedAt, &completedAt, &results, &r.CostUSD, &r.Error,
		&createdAt, &updatedAt, &metadata)
	if err != nil {
		return types.ExperimentRun{}, err
	}
	r.Status = types.RunStatus(status)
	r.StartedAt = parseTime(startedAt)
	r.CompletedAt = parseTime(completedAt)
	unmarshalJSON(results, &r.Results)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	unmarshalJSON(metadata, &r.Metadata)
	return r, nil
}

// AppendRunCheckpoint appends one entry to an experiment run's audit
// trail. The owning run must exist. Entries are never updated or deleted.
func (s *Store) AppendRunCheckpoint(ctx context.Context, runID, step string, snapshot map[string]any) (types.RunCheckpoint, error) {
	if err := s.requireParent("experiment_runs", runID); err != nil {
		return types.RunCheckpoint{}, err
	}

	cp := types.RunCheckpoint{
		RunID:     runID,
		Step:      step,
		Snapshot:  snapshot,
		CreatedAt: nowUTC(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_checkpoints (run_id, step, snapshot, created_at)
		 VALUES (?, ?, ?, ?)`,
		runID, step, marshalJSON(snapshot), formatTime(cp.CreatedAt),
	)
	if err != nil {
		return types.RunCheckpoint{}, fmt.Errorf("appending checkpoint for run %s: %w", runID, err)
	}
	cp.Seq, _ = res.LastInsertId()
	return cp, nil
}

// ListRunCheckpoints returns a run's checkpoints in append order.
func (s *Store) ListRunCheckpoints(ctx context.Context, runID string) ([]types.RunCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, run_id, step, snapshot, created_at
		 FROM experiment_checkpoints WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var out []types.RunCheckpoint
	for rows.Next() {
		var cp types.RunCheckpoint
		var snapshot, createdAt string
		if err := rows.Scan(&cp.Seq, &cp.RunID, &cp.Step, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		unmarshalJSON(snapshot, &cp.Snapshot)
		cp.CreatedAt = parseTime(createdAt)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// LatestRunCheckpoint returns the most recent checkpoint for a run, or
// ErrNotFound when the run has none.
func (s *Store) LatestRunCheckpoint(ctx context.Context, runID string) (types.RunCheckpoint, error) {
	var cp types.RunCheckpoint
	var snapshot, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, run_id, step, snapshot, created_at
		 FROM experiment_checkpoints WHERE run_id = ? ORDER BY seq DESC LIMIT 1`, runID,
	).Scan(&cp.Seq, &cp.RunID, &cp.Step, &snapshot, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunCheckpoint{}, fmt.Errorf("checkpoints for run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return types.RunCheckpoint{}, fmt.Errorf("reading latest checkpoint: %w", err)
	}
	unmarshalJSON(snapshot, &cp.Snapshot)
	cp.CreatedAt = parseTime(createdAt)
	return cp, nil
}

// PutAnalysis inserts or fully replaces an analysis. The owning run and
// project must exist; a referenced hypothesis must exist when declared.
func (s *Store) PutAnalysis(ctx context.Context, a types.Analysis) error {
	if err := s.requireParent("experiment_runs", a.RunID); err != nil {
		return err
	}
	if err := s.requireParent("projects", a.ProjectID); err != nil {
		return err
	}
	if a.HypothesisID != "" {
		if err := s.requireParent("hypotheses", a.HypothesisID); err != nil {
			return err
		}
	}
	if a.Status == "" {
		a.Status = types.AnalysisCompleted
	}
	if err := s.checkTransition("analyses", a.ID, string(a.Status), analysisTransitions); err != nil {
		return err
	}

	now := nowUTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analyses
		 (id, run_id, project_id, hypothesis_id, p_value, effect_size, interval,
		  baselines, insights, conclusions, decision, status, created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.ProjectID, a.HypothesisID, a.PValue, a.EffectSize,
		marshalJSON(a.Interval), marshalJSON(a.Baselines), a.Insights, a.Conclusions,
		string(a.Decision), string(a.Status),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt), marshalJSON(a.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing analysis %s: %w", a.ID, err)
	}
	return nil
}

// GetAnalysis fetches an analysis by id.
func (s *Store) GetAnalysis(ctx context.Context, id string) (types.Analysis, error) {
	var a types.Analysis
	var interval, baselines, decision, status, createdAt, updatedAt, metadata string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, project_id, hypothesis_id, p_value, effect_size, interval,
		        baselines, insights, conclusions, decision, status, created_at, updated_at, metadata
		 FROM analyses WHERE id = ?`, id,
	).Scan(&a.ID, &a.RunID, &a.ProjectID, &a.HypothesisID, &a.PValue, &a.EffectSize,
		&interval, &baselines, &a.Insights, &a.Conclusions, &decision, &status,
		&createdAt, &updatedAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Analysis{}, fmt.Errorf("analysis %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Analysis{}, fmt.Errorf("reading analysis %s: %w", id, err)
	}
	unmarshalJSON(interval, &a.Interval)
	unmarshalJSON(baselines, &a.Baselines)
	a.Decision = types.Verdict(decision)
	a.Status = types.AnalysisStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	unmarshalJSON(metadata, &a.Metadata)
	return a, nil
}

// PutPipelineRun inserts or fully replaces a pipeline run record. The
// owning project must exist and status changes must follow the pipeline
// lifecycle.
func (s *Store) PutPipelineRun(ctx context.Context, r types.PipelineRun) error {
	if err := s.requireParent("projects", r.ProjectID); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = types.PipelinePending
	}
	if err := s.checkTransition("pipeline_runs", r.ID, string(r.Status), pipelineTransitions); err != nil {
		return err
	}

	now := nowUTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pipeline_runs
		 (id, project_id, status, started_at, completed_at, error, total_cost_usd,
		  created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, string(r.Status),
		formatTime(r.StartedAt), formatTime(r.CompletedAt), r.Error, r.TotalCostUSD,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), marshalJSON(r.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing pipeline run %s: %w", r.ID, err)
	}
	return nil
}

// ListPipelineRuns returns a project's pipeline runs, newest first.
func (s *Store) ListPipelineRuns(ctx context.Context, projectID string) ([]types.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, status, started_at, completed_at, error, total_cost_usd,
		        created_at, updated_at, metadata
		 FROM pipeline_runs WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing pipeline runs: %w", err)
	}
	defer rows.Close()

	var out []types.PipelineRun
	for rows.Next() {
		var r types.PipelineRun
		var status, startedAt, completedAt, createdAt, updatedAt, metadata string
		if err := rows.Scan(&r.ID, &r.ProjectID, &status, &startedAt, &completedAt,
			&r.Error, &r.TotalCostUSD, &createdAt, &updatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scanning pipeline run: %w", err)
		}
		r.Status = types.PipelineStatus(status)
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseTime(completedAt)
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		unmarshalJSON(metadata, &r.Metadata)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendStageCheckpoint durably records that a pipeline stage completed
// for a project. The write is committed before the call returns, so a
// crash immediately after a reported stage success never loses the
// checkpoint needed for resume.
func (s *Store) AppendStageCheckpoint(ctx context.Context, projectID, stage, artifactID string) (types.StageCheckpoint, error) {
	if err := s.requireParent("projects", projectID); err != nil {
		return types.StageCheckpoint{}, err
	}

	cp := types.StageCheckpoint{
		ProjectID:  projectID,
		Stage:      stage,
		ArtifactID: artifactID,
		CreatedAt:  nowUTC(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_checkpoints (project_id, stage, artifact_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		projectID, stage, artifactID, formatTime(cp.CreatedAt),
	)
	if err != nil {
		return types.StageCheckpoint{}, fmt.Errorf("appending stage checkpoint: %w", err)
	}
	cp.Seq, _ = res.LastInsertId()
	return cp, nil
}

// LatestStageCheckpoint returns the most recent stage checkpoint for a
// project, or ErrNotFound when none exists.
func (s *Store) LatestStageCheckpoint(ctx context.Context, projectID string) (types.StageCheckpoint, error) {
	var cp types.StageCheckpoint
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, project_id, stage, artifact_id, created_at
		 FROM pipeline_checkpoints WHERE project_id = ? ORDER BY seq DESC LIMIT 1`, projectID,
	).Scan(&cp.Seq, &cp.ProjectID, &cp.Stage, &cp.ArtifactID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StageCheckpoint{}, fmt.Errorf("stage checkpoints for project %q: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return types.StageCheckpoint{}, fmt.Errorf("reading latest stage checkpoint: %w", err)
	}
	cp.CreatedAt = parseTime(createdAt)
	return cp, nil
}
