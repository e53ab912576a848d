// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/internal/scholar"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// Literature surveys recent work in the project's domain. It queries the
// paper-search service, has the model score each result for relevance,
// and persists the top papers.
type Literature struct {
	deps *Deps
}

// NewLiterature builds the literature review stage.
func NewLiterature(d *Deps) *Literature { return &Literature{deps: d} }

// Name implements Runner.
func (s *Literature) Name() string { return LiteratureReview }

type relevancePayload struct {
	SourceID  string  `json:"source_id"`
	Relevance float64 `json:"relevance"`
}

// Run implements Runner.
func (s *Literature) Run(ctx context.Context, projectID string) (Output, error) {
	d := s.deps

	project, err := d.Store.GetProject(ctx, projectID)
	if err != nil {
		return Output{}, fmt.Errorf("loading project: %w", err)
	}

	query := project.Name
	if project.Domain != "" {
		query = project.Domain + " " + project.Name
	}

	// Fetch double the keep count so relevance filtering has something
	// to discard.
	limit := 2 * d.Config.Search.MaxPapers
	d.logf("%s: searching for %q (limit %d)", LiteratureReview, query, limit)

	records, err := d.Papers.Search(ctx, query, limit)
	if err != nil {
		return Output{}, fmt.Errorf("searching papers: %w", err)
	}
	if len(records) == 0 {
		return Output{}, fmt.Errorf("no papers found for query %q", query)
	}

	prompt := s.scoringPrompt(project, records)

	scores := make(map[string]float64)
	cost, err := d.generateValidated(ctx, LiteratureReview, prompt, func(text string) error {
		var payload []relevancePayload
		if err := decodeJSON(LiteratureReview, text, &payload); err != nil {
			return err
		}
		parsed := make(map[string]float64, len(payload))
		for _, p := range payload {
			if !scoreInRange(p.Relevance) {
				return &ValidationError{
					Stage:  LiteratureReview,
					Reason: fmt.Sprintf("relevance %.2f for %s out of range", p.Relevance, p.SourceID),
				}
			}
			parsed[p.SourceID] = p.Relevance
		}
		for _, r := range records {
			if _, ok := parsed[r.SourceID]; !ok {
				return &ValidationError{
					Stage:  LiteratureReview,
					Reason: "missing relevance score for " + r.SourceID,
				}
			}
		}
		scores = parsed
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return scores[records[i].SourceID] > scores[records[j].SourceID]
	})
	if len(records) > d.Config.Search.MaxPapers {
		records = records[:d.Config.Search.MaxPapers]
	}

	now := nowUTC()
	var topID string
	var noteBody strings.Builder
	for _, r := range records {
		paper := types.Paper{
			ID:             uuid.NewString(),
			ProjectID:      projectID,
			SourceID:       r.SourceID,
			Title:          r.Title,
			Authors:        r.Authors,
			Abstract:       r.Abstract,
			PublishedDate:  r.PublishedDate,
			RelevanceScore: scores[r.SourceID],
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := d.Store.PutPaper(ctx, paper); err != nil {
			return Output{}, fmt.Errorf("saving paper: %w", err)
		}
		if topID == "" {
			topID = paper.ID
		}
		fmt.Fprintf(&noteBody, "- **%s** (relevance %.1f)\n", r.Title, scores[r.SourceID])
	}

	d.logf("%s: kept %d papers", LiteratureReview, len(records))
	d.writeNote(projectID, LiteratureReview, "Literature Review", noteBody.String())

	return Output{ArtifactID: topID, CostUSD: cost}, nil
}

func (s *Literature) scoringPrompt(project types.Project, records []scholar.PaperRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing literature for a research project.\n")
	fmt.Fprintf(&b, "Project: %s\nDomain: %s\n\n", project.Name, project.Domain)
	b.WriteString("Rate each paper's relevance to the project on a 1-10 scale.\n")
	b.WriteString("Respond with a JSON array of objects, one per paper:\n")
	b.WriteString(`[{"source_id": "...", "relevance": 7.5}]` + "\n\nPapers:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n", r.SourceID, r.Title)
		if r.Abstract != "" {
			fmt.Fprintf(&b, "  abstract: %s\n", r.Abstract)
		}
	}
	return b.String()
}
