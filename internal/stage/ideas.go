// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/internal/ranking"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// Ideas generates candidate research directions from the reviewed
// literature and persists them in ranked order. The overall score comes
// from the ranking engine, never from the model.
type Ideas struct {
	deps *Deps
}

// NewIdeas builds the idea generation stage.
func NewIdeas(d *Deps) *Ideas { return &Ideas{deps: d} }

// Name implements Runner.
func (s *Ideas) Name() string { return IdeaGeneration }

type ideaPayload struct {
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Novelty     float64 `json:"novelty"`
	Feasibility float64 `json:"feasibility"`
	Impact      float64 `json:"impact"`
}

// Run implements Runner.
func (s *Ideas) Run(ctx context.Context, projectID string) (Output, error) {
	d := s.deps

	papers, err := d.Store.ListPapers(ctx, projectID)
	if err != nil {
		return Output{}, fmt.Errorf("loading papers: %w", err)
	}
	if len(papers) == 0 {
		return Output{}, fmt.Errorf("no papers for project %s; run literature review first", projectID)
	}

	prompt := s.generationPrompt(papers, d.Config.IdeaCount)
	d.logf("%s: requesting %d ideas from %d papers", IdeaGeneration, d.Config.IdeaCount, len(papers))

	now := nowUTC()
	var ranked []types.Idea
	cost, err := d.generateValidated(ctx, IdeaGeneration, prompt, func(text string) error {
		var payload []ideaPayload
		if err := decodeJSON(IdeaGeneration, text, &payload); err != nil {
			return err
		}
		if len(payload) == 0 {
			return &ValidationError{Stage: IdeaGeneration, Reason: "empty idea list"}
		}

		ideas := make([]types.Idea, 0, len(payload))
		for _, p := range payload {
			if p.Title == "" {
				return &ValidationError{Stage: IdeaGeneration, Reason: "idea with empty title"}
			}
			ideas = append(ideas, types.Idea{
				ID:          uuid.NewString(),
				ProjectID:   projectID,
				Title:       p.Title,
				Summary:     p.Summary,
				Novelty:     p.Novelty,
				Feasibility: p.Feasibility,
				Impact:      p.Impact,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}

		ordered, rankErr := ranking.Rank(ideas)
		if rankErr != nil {
			var scoreErr *ranking.ScoreError
			if errors.As(rankErr, &scoreErr) {
				return &ValidationError{Stage: IdeaGeneration, Reason: scoreErr.Error()}
			}
			return rankErr
		}
		ranked = ordered
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	var noteBody strings.Builder
	for _, idea := range ranked {
		if err := d.Store.PutIdea(ctx, idea); err != nil {
			return Output{}, fmt.Errorf("saving idea: %w", err)
		}
		fmt.Fprintf(&noteBody, "- **%s** (overall %.2f): %s\n", idea.Title, idea.Overall, idea.Summary)
	}

	d.logf("%s: ranked %d ideas, best %q (%.2f)", IdeaGeneration, len(ranked), ranked[0].Title, ranked[0].Overall)
	d.writeNote(projectID, IdeaGeneration, "Generated Ideas", noteBody.String())

	return Output{ArtifactID: ranked[0].ID, CostUSD: cost}, nil
}

func (s *Ideas) generationPrompt(papers []types.Paper, count int) string {
	var b strings.Builder
	b.WriteString("You are generating research ideas from a literature review.\n")
	b.WriteString("First identify gaps in the reviewed work, then propose ideas that address them.\n\n")
	fmt.Fprintf(&b, "Propose exactly %d ideas. Respond with a JSON array of objects:\n", count)
	b.WriteString(`[{"title": "...", "summary": "...", "novelty": 8, "feasibility": 6, "impact": 7}]` + "\n")
	b.WriteString("All three scores are on a 1-10 scale.\n\nReviewed papers:\n")
	for _, p := range papers {
		fmt.Fprintf(&b, "- title: %s\n", p.Title)
		if p.Abstract != "" {
			fmt.Fprintf(&b, "  abstract: %s\n", p.Abstract)
		}
	}
	return b.String()
}
