// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// Design plans the experiment for the most recent formulated hypothesis:
// methodology, data requirements, baselines, and a resource estimate.
type Design struct {
	deps *Deps
}

// NewDesign builds the experiment design stage.
func NewDesign(d *Deps) *Design { return &Design{deps: d} }

// Name implements Runner.
func (s *Design) Name() string { return ExperimentDesign }

type designPayload struct {
	Methodology string                 `json:"methodology"`
	Datasets    []types.DatasetSpec    `json:"datasets"`
	Baselines   []types.BaselineSpec   `json:"baselines"`
	Resources   types.ResourceEstimate `json:"resources"`
}

func (p designPayload) validate() *ValidationError {
	switch {
	case p.Methodology == "":
		return &ValidationError{Stage: ExperimentDesign, Reason: "empty methodology"}
	case len(p.Datasets) == 0:
		return &ValidationError{Stage: ExperimentDesign, Reason: "no datasets"}
	}
	for _, ds := range p.Datasets {
		if ds.Name == "" {
			return &ValidationError{Stage: ExperimentDesign, Reason: "dataset with empty name"}
		}
	}
	return nil
}

// Run implements Runner.
func (s *Design) Run(ctx context.Context, projectID string) (Output, error) {
	d := s.deps

	hypotheses, err := d.Store.ListHypotheses(ctx, projectID, types.HypothesisFormulated)
	if err != nil {
		return Output{}, fmt.Errorf("loading hypotheses: %w", err)
	}
	if len(hypotheses) == 0 {
		return Output{}, fmt.Errorf("no formulated hypothesis for project %s", projectID)
	}
	// Most recent first: the list is ordered by creation time ascending.
	h := hypotheses[len(hypotheses)-1]

	d.logf("%s: designing experiment for %q", ExperimentDesign, h.Title)

	var payload designPayload
	cost, err := d.generateValidated(ctx, ExperimentDesign, s.designPrompt(h), func(text string) error {
		var p designPayload
		if err := decodeJSON(ExperimentDesign, text, &p); err != nil {
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
	design := types.ExperimentDesign{
		ID:           uuid.NewString(),
		HypothesisID: h.ID,
		ProjectID:    projectID,
		Methodology:  payload.Methodology,
		Datasets:     payload.Datasets,
		Baselines:    payload.Baselines,
		Resources:    payload.Resources,
		Status:       types.DesignDesigned,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Store.PutDesign(ctx, design); err != nil {
		return Output{}, fmt.Errorf("saving design: %w", err)
	}

	// Nothing blocks execution in this pipeline, so promote immediately.
	design.Status = types.DesignReady
	design.UpdatedAt = nowUTC()
	if err := d.Store.PutDesign(ctx, design); err != nil {
		return Output{}, fmt.Errorf("promoting design: %w", err)
	}

	d.logf("%s: design ready (%d datasets, %d baselines)", ExperimentDesign,
		len(design.Datasets), len(design.Baselines))
	d.writeNote(projectID, ExperimentDesign, "Experiment Design",
		fmt.Sprintf("**Methodology**: %s\n\nEstimated cost: $%.2f\n",
			design.Methodology, design.Resources.EstimatedCostUSD))

	return Output{ArtifactID: design.ID, CostUSD: cost}, nil
}

func (s *Design) designPrompt(h types.Hypothesis) string {
	var b strings.Builder
	b.WriteString("Design an experiment to test the hypothesis below.\n\n")
	fmt.Fprintf(&b, "Hypothesis: %s\nNull: %s\n", h.Statement, h.NullStatement)
	fmt.Fprintf(&b, "Independent variables: %s\nDependent variables: %s\n\n",
		strings.Join(h.IndependentVars, ", "), strings.Join(h.DependentVars, ", "))
	b.WriteString("Respond with a JSON object:\n")
	b.WriteString(`{"methodology": "...", ` +
		`"datasets": [{"name": "...", "description": "...", "min_samples": 100}], ` +
		`"baselines": [{"name": "...", "metric": "...", "expected": 0.8}], ` +
		`"resources": {"compute_hours": 2, "memory_gb": 8, "estimated_cost_usd": 1.5}}` + "\n")
	b.WriteString("Include at least one dataset and at least one baseline.\n")
	return b.String()
}
