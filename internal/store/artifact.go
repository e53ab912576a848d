// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// hypothesisTransitions is the closed lifecycle for hypotheses. A
// hypothesis never returns to an earlier state once tested.
var hypothesisTransitions = map[string][]string{
	string(types.HypothesisFormulated): {
		string(types.HypothesisTested),
		string(types.HypothesisValidated),
		string(types.HypothesisRejected),
	},
	string(types.HypothesisTested): {
		string(types.HypothesisValidated),
		string(types.HypothesisRejected),
	},
	string(types.HypothesisValidated): {},
	string(types.HypothesisRejected):  {},
}

var designTransitions = map[string][]string{
	string(types.DesignDesigned): {string(types.DesignReady), string(types.DesignArchived)},
	string(types.DesignReady):    {string(types.DesignArchived)},
	string(types.DesignArchived): {},
}

// PutIdea inserts or fully replaces an idea. The owning project must
// exist.
func (s *Store) PutIdea(ctx context.Context, idea types.Idea) error {
	if err := s.requireParent("projects", idea.ProjectID); err != nil {
		return err
	}

	now := nowUTC()
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = now
	}
	idea.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ideas
		 (id, project_id, title, summary, novelty, feasibility, impact, overall,
		  created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.ProjectID, idea.Title, idea.Summary,
		idea.Novelty, idea.Feasibility, idea.Impact, idea.Overall,
		formatTime(idea.CreatedAt), formatTime(idea.UpdatedAt), marshalJSON(idea.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing idea %s: %w", idea.ID, err)
	}
	return nil
}

// ListIdeas returns a project's ideas ordered by overall score, highest
// first, with creation order breaking ties.
func (s *Store) ListIdeas(ctx context.Context, projectID string) ([]types.Idea, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, summary, novelty, feasibility, impact, overall,
		        created_at, updated_at, metadata
		 FROM ideas WHERE project_id = ?
		 ORDER BY overall DESC, novelty DESC, created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing ideas: %w", err)
	}
	defer rows.Close()

	var ideas []types.Idea
	for rows.Next() {
		var idea types.Idea
		var createdAt, updatedAt, metadata string
		if err := rows.Scan(&idea.ID, &idea.ProjectID, &idea.Title, &idea.Summary,
			&idea.Novelty, &idea.Feasibility, &idea.Impact, &idea.Overall,
			&createdAt, &updatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scanning idea: %w", err)
		}
		idea.CreatedAt = parseTime(createdAt)
		idea.UpdatedAt = parseTime(updatedAt)
		unmarshalJSON(metadata, &idea.Metadata)
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// PutHypothesis inserts or fully replaces a hypothesis. The owning
// project must exist and any status change must follow the hypothesis
// lifecycle.
func (s *Store) PutHypothesis(ctx context.Context, h types.Hypothesis) error {
	if err := s.requireParent("projects", h.ProjectID); err != nil {
		return err
	}
	if h.Status == "" {
		h.Status = types.HypothesisFormulated
	}
	if err := s.checkTransition("hypotheses", h.ID, string(h.Status), hypothesisTransitions); err != nil {
		return err
	}

	now := nowUTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO hypotheses
		 (id, project_id, idea_id, title, statement, null_statement,
		  independent_vars, dependent_vars, control_vars, metrics, status,
		  created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ProjectID, h.IdeaID, h.Title, h.Statement, h.NullStatement,
		marshalJSON(h.IndependentVars), marshalJSON(h.DependentVars),
		marshalJSON(h.ControlVars), marshalJSON(h.Metrics), string(h.Status),
		formatTime(h.CreatedAt), formatTime(h.UpdatedAt), marshalJSON(h.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing hypothesis %s: %w", h.ID, err)
	}
	return nil
}

// GetHypothesis fetches a hypothesis by id.
func (s *Store) GetHypothesis(ctx context.Context, id string) (types.Hypothesis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, idea_id, title, statement, null_statement,
		        independent_vars, dependent_vars, control_vars, metrics, status,
		        created_at, updated_at, metadata
		 FROM hypotheses WHERE id = ?`, id)
	h, err := scanHypothesis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Hypothesis{}, fmt.Errorf("hypothesis %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Hypothesis{}, fmt.Errorf("reading hypothesis %s: %w", id, err)
	}
	return h, nil
}

// ListHypotheses returns a project's hypotheses, optionally filtered by
// status, oldest first.
func (s *Store) ListHypotheses(ctx context.Context, projectID string, status types.HypothesisStatus) ([]types.Hypothesis, error) {
	query := `SELECT id, project_id, idea_id, title, statement, null_statement,
		independent_vars, dependent_vars, control_vars, metrics, status,
		created_at, updated_at, metadata
		FROM hypotheses WHERE project_id = ? ORDER BY created_at ASC`
	args := []any{projectID}
	if status != "" {
		query = `SELECT id, project_id, idea_id, title, statement, null_statement,
			independent_vars, dependent_vars, control_vars, metrics, status,
			created_at, updated_at, metadata
			FROM hypotheses WHERE project_id = ? AND status = ? ORDER BY created_at ASC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing hypotheses: %w", err)
	}
	defer rows.Close()

	var out []types.Hypothesis
	for rows.Next() {
		h, err := scanHypothesis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning hypothesis: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHypothesis(row rowScanner) (types.Hypothesis, error) {
	var h types.Hypothesis
	var indep, dep, control, metrics, status, createdAt, updatedAt, metadata string
	err := row.Scan(&h.ID, &h.ProjectID, &h.IdeaID, &h.Title, &h.Statement,
		&h.NullStatement, &indep, &dep, &control, &metrics, &status,
		&createdAt, &updatedAt, &metadata)
	if err != nil {
		return types.Hypothesis{}, err
	}
	unmarshalJSON(indep, &h.IndependentVars)
	unmarshalJSON(dep, &h.DependentVars)
	unmarshalJSON(control, &h.ControlVars)
	unmarshalJSON(metrics, &h.Metrics)
	h.Status = types.HypothesisStatus(status)
	h.CreatedAt = parseTime(createdAt)
	h.UpdatedAt = parseTime(updatedAt)
	unmarshalJSON(metadata, &h.Metadata)
	return h, nil
}

// PutDesign inserts or fully replaces an experiment design. The owning
// hypothesis and project must exist and status changes must follow the
// design lifecycle.
func (s *Store) PutDesign(ctx context.Context, d types.ExperimentDesign) error {
	if err := s.requireParent("hypotheses", d.HypothesisID); err != nil {
		return err
	}
	if err := s.requireParent("projects", d.ProjectID); err != nil {
		return err
	}
	if d.Status == "" {
		d.Status = types.DesignDesigned
	}
	if err := s.checkTransition("experiment_designs", d.ID, string(d.Status), designTransitions); err != nil {
		return err
	}

	now := nowUTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO experiment_designs
		 (id, hypothesis_id, project_id, methodology, datasets, baselines,
		  resources, status, created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.HypothesisID, d.ProjectID, d.Methodology,
		marshalJSON(d.Datasets), marshalJSON(d.Baselines), marshalJSON(d.Resources),
		string(d.Status), formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
		marshalJSON(d.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing design %s: %w", d.ID, err)
	}
	return nil
}

// GetDesign fetches an experiment design by id.
func (s *Store) GetDesign(ctx context.Context, id string) (types.ExperimentDesign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hypothesis_id, project_id, methodology, datasets, baselines,
		        resources, status, created_at, updated_at, metadata
		 FROM experiment_designs WHERE id = ?`, id)
	d, err := scanDesign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ExperimentDesign{}, fmt.Errorf("design %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.ExperimentDesign{}, fmt.Errorf("reading design %s: %w", id, err)
	}
	return d, nil
}

// ListDesigns returns a project's designs, optionally filtered by status,
// oldest first.
func (s *Store) ListDesigns(ctx context.Context, projectID string, status types.DesignStatus) ([]types.ExperimentDesign, error) {
	query := `SELECT id, hypothesis_id, project_id, methodology, datasets, baselines,
		resources, status, created_at, updated_at, metadata
		FROM experiment_designs WHERE project_id = ? ORDER BY created_at ASC`
	args := []any{projectID}
	if status != "" {
		query = `SELECT id, hypothesis_id, project_id, methodology, datasets, baselines,
			resources, status, created_at, updated_at, metadata
			FROM experiment_designs WHERE project_id = ? AND status = ? ORDER BY created_at ASC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing designs: %w", err)
	}
	defer rows.Close()

	var out []types.ExperimentDesign
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning design: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDesign(row rowScanner) (types.ExperimentDesign, error) {
	var d types.ExperimentDesign
	var datasets, baselines, resources, status, createdAt, updatedAt, metadata string
	err := row.Scan(&d.ID, &d.HypothesisID, &d.ProjectID, &d.Methodology,
		&datasets, &baselines, &resources, &status, &createdAt, &updatedAt, &metadata)
	if err != nil {
		return types.ExperimentDesign{}, err
	}
	unmarshalJSON(datasets, &d.Datasets)
	unmarshalJSON(baselines, &d.Baselines)
	unmarshalJSON(resources, &d.Resources)
	d.Status = types.DesignStatus(status)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	unmarshalJSON(metadata, &d.Metadata)
	return d, nil
}
