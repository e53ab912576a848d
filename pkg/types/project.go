// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ProjectStatus indicates whether a research project is still active.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project is the root entity of a research workflow. Every artifact
// produced by the pipeline belongs to exactly one project.
type Project struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable project name.
	Name string `json:"name" yaml:"name"`

	// Domain is the research domain (e.g. "machine_learning").
	Domain string `json:"domain" yaml:"domain"`

	// Status is active or archived.
	Status ProjectStatus `json:"status" yaml:"status"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// Metadata is an open-ended bag of additional fields.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Paper holds metadata for a paper surfaced by the literature review stage.
type Paper struct {
	// ID is an opaque unique identifier.
	ID string `json:"id" yaml:"id"`

	// ProjectID is the owning project.
	ProjectID string `json:"project_id" yaml:"project_id"`

	// SourceID is the upstream identifier (e.g. an arXiv or Semantic
	// Scholar paper id) for provenance.
	SourceID string `json:"source_id" yaml:"source_id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// PublishedDate is the publication or preprint date.
	PublishedDate time.Time `json:"published_date" yaml:"published_date"`

	// RelevanceScore rates relevance to the project query on a 1-10 scale.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
