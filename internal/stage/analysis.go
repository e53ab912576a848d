// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/research-pilot/internal/decision"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// Analysis evaluates the most recent completed run: p-value, effect
// size, confidence interval, baseline comparisons, a verdict from the
// decision engine, and model-written interpretation. It also advances
// the hypothesis status to match the verdict.
type Analysis struct {
	deps *Deps
}

// NewAnalysis builds the results analysis stage.
func NewAnalysis(d *Deps) *Analysis { return &Analysis{deps: d} }

// Name implements Runner.
func (s *Analysis) Name() string { return ResultsAnalysis }

// Run implements Runner.
func (s *Analysis) Run(ctx context.Context, projectID string) (Output, error) {
	d := s.deps

	runs, err := d.Store.ListRuns(ctx, projectID, types.RunCompleted)
	if err != nil {
		return Output{}, fmt.Errorf("loading runs: %w", err)
	}
	if len(runs) == 0 {
		return Output{}, fmt.Errorf("no completed run for project %s", projectID)
	}
	run := runs[0]
	if run.Results == nil {
		return Output{}, fmt.Errorf("run %s completed without results", run.ID)
	}
	results := *run.Results

	design, err := d.Store.GetDesign(ctx, run.DesignID)
	if err != nil {
		return Output{}, fmt.Errorf("loading design: %w", err)
	}

	// Standardized effect: mean over spread. A degenerate spread falls
	// back to the raw mean so the verdict stays defined.
	effectSize := results.EffectMean
	if results.EffectStdDev > 0 {
		effectSize = results.EffectMean / results.EffectStdDev
	}

	pValue := decision.PValue(effectSize, results.SampleSize)
	interval, err := decision.Interval(results.EffectMean, results.EffectStdDev,
		results.SampleSize, d.Config.Analysis.ConfidenceLevel)
	if err != nil {
		return Output{}, fmt.Errorf("computing confidence interval: %w", err)
	}
	verdict := decision.Decide(pValue, effectSize, d.Config.Analysis.MinimumEffectSize)

	var baselines []types.BaselineComparison
	for _, b := range design.Baselines {
		measured, ok := results.Metrics[b.Metric]
		if !ok {
			continue
		}
		baselines = append(baselines, types.BaselineComparison{
			Baseline: b.Name,
			Metric:   b.Metric,
			Expected: b.Expected,
			Measured: measured,
			Delta:    measured - b.Expected,
		})
	}

	d.logf("%s: p=%.4f effect=%.3f verdict=%s", ResultsAnalysis, pValue, effectSize, verdict)

	// Interpretation is free text; no shape to validate, so no repair
	// retry either.
	insightResp, err := d.generate(ctx, s.insightPrompt(design, results, pValue, effectSize, verdict))
	if err != nil {
		return Output{}, fmt.Errorf("generating insights: %w", err)
	}

	now := nowUTC()
	analysis := types.Analysis{
		ID:           uuid.NewString(),
		RunID:        run.ID,
		ProjectID:    projectID,
		HypothesisID: design.HypothesisID,
		PValue:       pValue,
		EffectSize:   effectSize,
		Interval:     interval,
		Baselines:    baselines,
		Insights:     strings.TrimSpace(insightResp.Text),
		Conclusions:  conclusionFor(verdict, pValue, effectSize),
		Decision:     verdict,
		Status:       types.AnalysisCompleted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Store.PutAnalysis(ctx, analysis); err != nil {
		return Output{}, fmt.Errorf("saving analysis: %w", err)
	}

	if err := s.advanceHypothesis(ctx, design.HypothesisID, verdict); err != nil {
		return Output{}, err
	}

	d.writeNote(projectID, ResultsAnalysis, "Results Analysis",
		fmt.Sprintf("**Verdict**: %s\n\np=%.4f, effect=%.3f, CI [%.3f, %.3f] at %.0f%%\n\n%s\n",
			verdict, pValue, effectSize, interval.Lower, interval.Upper,
			interval.Level*100, analysis.Insights))

	return Output{ArtifactID: analysis.ID, CostUSD: insightResp.CostUSD}, nil
}

// advanceHypothesis moves the tested hypothesis to the status implied by
// the verdict.
func (s *Analysis) advanceHypothesis(ctx context.Context, hypothesisID string, verdict types.Verdict) error {
	if hypothesisID == "" {
		return nil
	}
	h, err := s.deps.Store.GetHypothesis(ctx, hypothesisID)
	if err != nil {
		return fmt.Errorf("loading hypothesis: %w", err)
	}

	switch verdict {
	case types.VerdictAcceptStrong, types.VerdictAcceptWeak:
		h.Status = types.HypothesisValidated
	case types.VerdictReject:
		h.Status = types.HypothesisRejected
	default:
		h.Status = types.HypothesisTested
	}
	h.UpdatedAt = nowUTC()

	if err := s.deps.Store.PutHypothesis(ctx, h); err != nil {
		return fmt.Errorf("updating hypothesis status: %w", err)
	}
	return nil
}

func conclusionFor(verdict types.Verdict, pValue, effectSize float64) string {
	switch verdict {
	case types.VerdictAcceptStrong:
		return fmt.Sprintf("Significant result (p=%.4f) with a substantial effect (%.3f); the hypothesis is supported.", pValue, effectSize)
	case types.VerdictAcceptWeak:
		return fmt.Sprintf("Significant result (p=%.4f) but the effect (%.3f) is below the configured minimum.", pValue, effectSize)
	case types.VerdictInconclusive:
		return fmt.Sprintf("Marginal result (p=%.4f); more data is needed before a decision.", pValue)
	default:
		return fmt.Sprintf("No significant evidence (p=%.4f); the hypothesis is not supported.", pValue)
	}
}

func (s *Analysis) insightPrompt(design types.ExperimentDesign, results types.RunResults, pValue, effectSize float64, verdict types.Verdict) string {
	var b strings.Builder
	b.WriteString("Interpret the experiment results below in two or three short paragraphs.\n")
	b.WriteString("Focus on what the numbers mean and what a researcher should do next.\n\n")
	fmt.Fprintf(&b, "Methodology: %s\n", design.Methodology)
	fmt.Fprintf(&b, "Samples: %d\nEffect mean: %.4f\nEffect std dev: %.4f\n",
		results.SampleSize, results.EffectMean, results.EffectStdDev)
	fmt.Fprintf(&b, "p-value: %.4f\nStandardized effect: %.4f\nVerdict: %s\n\nMetrics:\n",
		pValue, effectSize, verdict)
	names := make([]string, 0, len(results.Metrics))
	for name := range results.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %.4f\n", name, results.Metrics[name])
	}
	return b.String()
}
