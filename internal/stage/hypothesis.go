// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// Hypothesis turns the top-ranked idea into a testable hypothesis with
// explicit variables and outcome metrics.
type Hypothesis struct {
	deps *Deps
}

// NewHypothesis builds the hypothesis formation stage.
func NewHypothesis(d *Deps) *Hypothesis { return &Hypothesis{deps: d} }

// Name implements Runner.
func (s *Hypothesis) Name() string { return HypothesisFormation }

type hypothesisPayload struct {
	Title           string             `json:"title"`
	Statement       string             `json:"statement"`
	NullStatement   string             `json:"null_statement"`
	IndependentVars []string           `json:"independent_vars"`
	DependentVars   []string           `json:"dependent_vars"`
	ControlVars     []string           `json:"control_vars"`
	Metrics         []types.MetricSpec `json:"metrics"`
}

func (p hypothesisPayload) validate() *ValidationError {
	switch {
	case p.Statement == "":
		return &ValidationError{Stage: HypothesisFormation, Reason: "empty statement"}
	case p.NullStatement == "":
		return &ValidationError{Stage: HypothesisFormation, Reason: "empty null statement"}
	case len(p.IndependentVars) == 0:
		return &ValidationError{Stage: HypothesisFormation, Reason: "no independent variables"}
	case len(p.DependentVars) == 0:
		return &ValidationError{Stage: HypothesisFormation, Reason: "no dependent variables"}
	case len(p.Metrics) == 0:
		return &ValidationError{Stage: HypothesisFormation, Reason: "no metrics"}
	}
	return nil
}

// Run implements Runner.
func (s *Hypothesis) Run(ctx context.Context, projectID string) (Output, error) {
	d := s.deps

	ideas, err := d.Store.ListIdeas(ctx, projectID)
	if err != nil {
		return Output{}, fmt.Errorf("loading ideas: %w", err)
	}
	if len(ideas) == 0 {
		return Output{}, fmt.Errorf("no ideas for project %s; run idea generation first", projectID)
	}
	top := ideas[0]

	d.logf("%s: forming hypothesis from idea %q", HypothesisFormation, top.Title)

	var payload hypothesisPayload
	cost, err := d.generateValidated(ctx, HypothesisFormation, s.formationPrompt(top), func(text string) error {
		var p hypothesisPayload
		if err := decodeJSON(HypothesisFormation, text, &p); err != nil {
			return err
		}
		if verr := p.validate(); verr != nil {
			return verr
		}
		payload = p
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	now := nowUTC()
	h := types.Hypothesis{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		IdeaID:          top.ID,
		Title:           payload.Title,
		Statement:       payload.Statement,
		NullStatement:   payload.NullStatement,
		IndependentVars: payload.IndependentVars,
		DependentVars:   payload.DependentVars,
		ControlVars:     payload.ControlVars,
		Metrics:         payload.Metrics,
		Status:          types.HypothesisFormulated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.Store.PutHypothesis(ctx, h); err != nil {
		return Output{}, fmt.Errorf("saving hypothesis: %w", err)
	}

	d.logf("%s: formulated %q", HypothesisFormation, h.Title)
	d.writeNote(projectID, HypothesisFormation, "Hypothesis",
		fmt.Sprintf("**Statement**: %s\n\n**Null**: %s\n", h.Statement, h.NullStatement))

	return Output{ArtifactID: h.ID, CostUSD: cost}, nil
}

func (s *Hypothesis) formationPrompt(idea types.Idea) string {
	var b strings.Builder
	b.WriteString("Formulate a testable hypothesis for the research idea below.\n\n")
	fmt.Fprintf(&b, "Idea: %s\nSummary: %s\n\n", idea.Title, idea.Summary)
	b.WriteString("Respond with a JSON object:\n")
	b.WriteString(`{"title": "...", "statement": "...", "null_statement": "...", ` +
		`"independent_vars": ["..."], "dependent_vars": ["..."], "control_vars": ["..."], ` +
		`"metrics": [{"name": "...", "description": "...", "target": 0.9}]}` + "\n")
	b.WriteString("The statement must be falsifiable; independent and dependent variables must be non-empty.\n")
	return b.String()
}
