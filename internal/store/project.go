// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// PutProject inserts or fully replaces a project record.
func (s *Store) PutProject(ctx context.Context, p types.Project) error {
	now := nowUTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = types.ProjectActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO projects (id, name, domain, status, created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Domain, string(p.Status),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), marshalJSON(p.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (types.Project, error) {
	var p types.Project
	var status, createdAt, updatedAt, metadata string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, domain, status, created_at, updated_at, metadata
		 FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Domain, &status, &createdAt, &updatedAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Project{}, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Project{}, fmt.Errorf("reading project %s: %w", id, err)
	}

	p.Status = types.ProjectStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	unmarshalJSON(metadata, &p.Metadata)
	return p, nil
}

// ListProjects returns all projects, optionally filtered by status, newest
// first.
func (s *Store) ListProjects(ctx context.Context, status types.ProjectStatus) ([]types.Project, error) {
	query := `SELECT id, name, domain, status, created_at, updated_at, metadata
		FROM projects ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT id, name, domain, status, created_at, updated_at, metadata
			FROM projects WHERE status = ? ORDER BY created_at DESC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		var p types.Project
		var st, createdAt, updatedAt, metadata string
		if err := rows.Scan(&p.ID, &p.Name, &p.Domain, &st, &createdAt, &updatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		p.Status = types.ProjectStatus(st)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		unmarshalJSON(metadata, &p.Metadata)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// PutPaper inserts or fully replaces a paper. The owning project must
// exist.
func (s *Store) PutPaper(ctx context.Context, p types.Paper) error {
	if err := s.requireParent("projects", p.ProjectID); err != nil {
		return err
	}

	now := nowUTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO papers
		 (id, project_id, source_id, title, authors, abstract, published_date,
		  relevance_score, created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.SourceID, p.Title, marshalJSON(p.Authors), p.Abstract,
		formatTime(p.PublishedDate), p.RelevanceScore,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), marshalJSON(p.Metadata),
	)
	if err != nil {
		return fmt.Errorf("writing paper %s: %w", p.ID, err)
	}
	return nil
}

// ListPapers returns a project's papers ordered by relevance, highest
// first.
func (s *Store) ListPapers(ctx context.Context, projectID string) ([]types.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, source_id, title, authors, abstract, published_date,
		        relevance_score, created_at, updated_at, metadata
		 FROM papers WHERE project_id = ? ORDER BY relevance_score DESC, created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		var p types.Paper
		var authors, published, createdAt, updatedAt, metadata string
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.SourceID, &p.Title, &authors,
			&p.Abstract, &published, &p.RelevanceScore, &createdAt, &updatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		unmarshalJSON(authors, &p.Authors)
		p.PublishedDate = parseTime(published)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		unmarshalJSON(metadata, &p.Metadata)
		papers = append(papers, p)
	}
	return papers, rows.Err()
}
