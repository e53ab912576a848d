// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-pilot/internal/budget"
	"github.com/pdiddy/research-pilot/internal/llm"
	"github.com/pdiddy/research-pilot/internal/notes"
	"github.com/pdiddy/research-pilot/internal/scholar"
	"github.com/pdiddy/research-pilot/internal/store"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// scriptedModel returns canned responses in order and records the
// prompts it received.
type scriptedModel struct {
	estimate  float64
	responses []string
	prompts   []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string, _ int) (llm.Response, error) {
	m.prompts = append(m.prompts, prompt)
	i := len(m.prompts) - 1
	if i >= len(m.responses) {
		return llm.Response{}, fmt.Errorf("unexpected call %d", i)
	}
	return llm.Response{
		Text:         m.responses[i],
		InputTokens:  100,
		OutputTokens: 50,
		CostUSD:      0.01,
	}, nil
}

func (m *scriptedModel) EstimateCost(string, int) float64 {
	if m.estimate > 0 {
		return m.estimate
	}
	return 0.05
}

type stubSearcher struct {
	records  []scholar.PaperRecord
	gotQuery string
	gotLimit int
}

func (s *stubSearcher) Search(_ context.Context, query string, limit int) ([]scholar.PaperRecord, error) {
	s.gotQuery = query
	s.gotLimit = limit
	return s.records, nil
}

func testDeps(t *testing.T, model llm.Generator, searcher scholar.Searcher) (*Deps, *store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := types.PipelineConfig{}.WithDefaults()
	cfg.Search.MaxPapers = 2

	guard, err := budget.NewGuard(st.DB(), cfg.Budget, nil)
	require.NoError(t, err)

	return &Deps{
		Store:    st,
		Guard:    guard,
		Model:    model,
		Papers:   searcher,
		Notes:    notes.Discard{},
		Config:   cfg,
		Progress: &bytes.Buffer{},
	}, st
}

func seedProject(t *testing.T, st *store.Store) types.Project {
	t.Helper()
	p := types.Project{
		ID:     uuid.NewString(),
		Name:   "sparse attention",
		Domain: "machine_learning",
		Status: types.ProjectActive,
	}
	require.NoError(t, st.PutProject(context.Background(), p))
	return p
}

func seedIdea(t *testing.T, st *store.Store, projectID string, overall float64) types.Idea {
	t.Helper()
	idea := types.Idea{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Title:       "adaptive sparsity",
		Summary:     "learn the sparsity pattern",
		Novelty:     overall,
		Feasibility: overall,
		Impact:      overall,
		Overall:     overall,
	}
	require.NoError(t, st.PutIdea(context.Background(), idea))
	return idea
}

func seedHypothesis(t *testing.T, st *store.Store, projectID string) types.Hypothesis {
	t.Helper()
	h := types.Hypothesis{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Title:           "adaptive sparsity helps",
		Statement:       "Adaptive sparsity improves accuracy",
		NullStatement:   "Adaptive sparsity does not change accuracy",
		IndependentVars: []string{"sparsity_pattern"},
		DependentVars:   []string{"accuracy"},
		Metrics:         []types.MetricSpec{{Name: "accuracy", Target: 0.9}},
		Status:          types.HypothesisFormulated,
	}
	require.NoError(t, st.PutHypothesis(context.Background(), h))
	return h
}

func seedReadyDesign(t *testing.T, st *store.Store, projectID, hypothesisID string) types.ExperimentDesign {
	t.Helper()
	d := types.ExperimentDesign{
		ID:           uuid.NewString(),
		HypothesisID: hypothesisID,
		ProjectID:    projectID,
		Methodology:  "ablation over sparsity patterns",
		Datasets:     []types.DatasetSpec{{Name: "synthetic", MinSamples: 300}},
		Baselines:    []types.BaselineSpec{{Name: "dense", Metric: "accuracy", Expected: 0.85}},
		Resources:    types.ResourceEstimate{EstimatedCostUSD: 0},
		Status:       types.DesignDesigned,
	}
	require.NoError(t, st.PutDesign(context.Background(), d))
	d.Status = types.DesignReady
	require.NoError(t, st.PutDesign(context.Background(), d))
	return d
}

func samplePapers() []scholar.PaperRecord {
	return []scholar.PaperRecord{
		{SourceID: "p1", Title: "Paper One", Abstract: "about attention"},
		{SourceID: "p2", Title: "Paper Two", Abstract: "about sparsity"},
		{SourceID: "p3", Title: "Paper Three", Abstract: "about pruning"},
	}
}

func TestLiteratureKeepsTopScoredPapers(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`[{"source_id":"p1","relevance":4},{"source_id":"p2","relevance":9},{"source_id":"p3","relevance":7}]`,
	}}
	searcher := &stubSearcher{records: samplePapers()}
	deps, st := testDeps(t, model, searcher)
	project := seedProject(t, st)

	out, err := NewLiterature(deps).Run(context.Background(), project.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ArtifactID)
	assert.InDelta(t, 0.01, out.CostUSD, 1e-9)

	// Twice the keep count is requested so filtering has slack.
	assert.Equal(t, 4, searcher.gotLimit)
	assert.Contains(t, searcher.gotQuery, "machine_learning")

	papers, err := st.ListPapers(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "p2", papers[0].SourceID)
	assert.Equal(t, "p3", papers[1].SourceID)
	assert.Equal(t, out.ArtifactID, papers[0].ID)
}

func TestLiteratureRetriesMalformedOutputOnce(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"I cannot produce JSON, sorry.",
		`[{"source_id":"p1","relevance":4},{"source_id":"p2","relevance":9},{"source_id":"p3","relevance":7}]`,
	}}
	searcher := &stubSearcher{records: samplePapers()}
	deps, st := testDeps(t, model, searcher)
	project := seedProject(t, st)

	out, err := NewLiterature(deps).Run(context.Background(), project.ID)
	require.NoError(t, err)

	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "could not be used")
	// Both calls count against the budget.
	assert.InDelta(t, 0.02, out.CostUSD, 1e-9)
}

func TestLiteratureFailsAfterSecondMalformedOutput(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`[{"source_id":"p1","relevance":15}]`,
		"still not json",
	}}
	searcher := &stubSearcher{records: samplePapers()}
	deps, st := testDeps(t, model, searcher)
	project := seedProject(t, st)

	_, err := NewLiterature(deps).Run(context.Background(), project.ID)
	require.Error(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, model.prompts, 2)
}

func TestLiteratureBudgetRefusalIsFatal(t *testing.T) {
	model := &scriptedModel{estimate: 100}
	searcher := &stubSearcher{records: samplePapers()}
	deps, st := testDeps(t, model, searcher)
	project := seedProject(t, st)

	_, err := NewLiterature(deps).Run(context.Background(), project.ID)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	// The model call was never attempted.
	assert.Empty(t, model.prompts)
}

func TestIdeasRanksBeforePersisting(t *testing.T) {
	model := &scriptedModel{responses: []string{`[
		{"title":"weak","summary":"a","novelty":5,"feasibility":6,"impact":4},
		{"title":"strong","summary":"b","novelty":9,"feasibility":8,"impact":8},
		{"title":"middle","summary":"c","novelty":7,"feasibility":7,"impact":6}
	]`}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	require.NoError(t, st.PutPaper(context.Background(), types.Paper{
		ID: uuid.NewString(), ProjectID: project.ID, SourceID: "p1",
		Title: "Paper One", RelevanceScore: 8,
	}))

	out, err := NewIdeas(deps).Run(context.Background(), project.ID)
	require.NoError(t, err)

	ideas, err := st.ListIdeas(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, ideas, 3)
	assert.Equal(t, "strong", ideas[0].Title)
	assert.Equal(t, out.ArtifactID, ideas[0].ID)
	// Overall is the engine's weighted combination.
	assert.InDelta(t, 0.35*9+0.35*8+0.30*8, ideas[0].Overall, 1e-9)
}

func TestIdeasRejectsOutOfRangeScores(t *testing.T) {
	bad := `[{"title":"x","summary":"y","novelty":11,"feasibility":5,"impact":5}]`
	model := &scriptedModel{responses: []string{bad, bad}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	require.NoError(t, st.PutPaper(context.Background(), types.Paper{
		ID: uuid.NewString(), ProjectID: project.ID, SourceID: "p1", Title: "Paper One",
	}))

	_, err := NewIdeas(deps).Run(context.Background(), project.ID)
	require.Error(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, model.prompts, 2)

	ideas, err := st.ListIdeas(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Empty(t, ideas)
}

func TestHypothesisUsesTopIdea(t *testing.T) {
	model := &scriptedModel{responses: []string{`{
		"title":"sparsity helps",
		"statement":"Adaptive sparsity improves accuracy by 2 points",
		"null_statement":"Adaptive sparsity does not change accuracy",
		"independent_vars":["sparsity_pattern"],
		"dependent_vars":["accuracy"],
		"control_vars":["model_size"],
		"metrics":[{"name":"accuracy","target":0.9}]
	}`}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	seedIdea(t, st, project.ID, 5)
	top := seedIdea(t, st, project.ID, 9)

	out, err := NewHypothesis(deps).Run(context.Background(), project.ID)
	require.NoError(t, err)

	h, err := st.GetHypothesis(context.Background(), out.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, top.ID, h.IdeaID)
	assert.Equal(t, types.HypothesisFormulated, h.Status)
	assert.Contains(t, model.prompts[0], top.Title)
}

func TestHypothesisRequiresVariableLists(t *testing.T) {
	bad := `{"title":"x","statement":"s","null_statement":"n","independent_vars":[],"dependent_vars":["accuracy"],"metrics":[{"name":"accuracy"}]}`
	model := &scriptedModel{responses: []string{bad, bad}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	seedIdea(t, st, project.ID, 8)

	_, err := NewHypothesis(deps).Run(context.Background(), project.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "independent")
}

func TestDesignPersistsAndPromotes(t *testing.T) {
	model := &scriptedModel{responses: []string{`{
		"methodology":"ablation study",
		"datasets":[{"name":"synthetic","min_samples":500}],
		"baselines":[{"name":"dense","metric":"accuracy","expected":0.85}],
		"resources":{"compute_hours":2,"memory_gb":8,"estimated_cost_usd":1.5}
	}`}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	h := seedHypothesis(t, st, project.ID)

	out, err := NewDesign(deps).Run(context.Background(), project.ID)
	require.NoError(t, err)

	design, err := st.GetDesign(context.Background(), out.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, types.DesignReady, design.Status)
	assert.Equal(t, h.ID, design.HypothesisID)
	assert.Equal(t, 500, design.Datasets[0].MinSamples)
}

func TestExecuteCompletesRunWithCheckpoints(t *testing.T) {
	deps, st := testDeps(t, &scriptedModel{}, nil)
	project := seedProject(t, st)
	h := seedHypothesis(t, st, project.ID)
	seedReadyDesign(t, st, project.ID, h.ID)

	out, err := NewExecute(deps, SimulatedExecutor{}).Run(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Zero(t, out.CostUSD)

	run, err := st.GetRun(context.Background(), out.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	require.NotNil(t, run.Results)
	// The dataset floor wins over the default sample size.
	assert.Equal(t, 300, run.Results.SampleSize)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))

	checkpoints, err := st.ListRunCheckpoints(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 3)
	assert.Equal(t, "prepare", checkpoints[0].Step)
	assert.Equal(t, "execute", checkpoints[1].Step)
	assert.Equal(t, "collect", checkpoints[2].Step)
}

func TestExecuteResumesInterruptedRun(t *testing.T) {
	deps, st := testDeps(t, &scriptedModel{}, nil)
	project := seedProject(t, st)
	h := seedHypothesis(t, st, project.ID)
	design := seedReadyDesign(t, st, project.ID, h.ID)

	ctx := context.Background()
	interrupted := types.ExperimentRun{
		ID:        uuid.NewString(),
		DesignID:  design.ID,
		ProjectID: project.ID,
		Platform:  "simulated",
		Status:    types.RunPending,
	}
	require.NoError(t, st.PutRun(ctx, interrupted))
	interrupted.Status = types.RunRunning
	interrupted.StartedAt = nowUTC()
	require.NoError(t, st.PutRun(ctx, interrupted))
	_, err := st.AppendRunCheckpoint(ctx, interrupted.ID, "prepare", nil)
	require.NoError(t, err)

	out, err := NewExecute(deps, SimulatedExecutor{}).Run(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, interrupted.ID, out.ArtifactID)

	checkpoints, err := st.ListRunCheckpoints(ctx, interrupted.ID)
	require.NoError(t, err)
	// prepare is not re-appended.
	require.Len(t, checkpoints, 3)
	assert.Equal(t, "prepare", checkpoints[0].Step)
}

func TestSimulatedExecutorIsDeterministic(t *testing.T) {
	design := types.ExperimentDesign{
		ID:        "fixed-id",
		Datasets:  []types.DatasetSpec{{Name: "d", MinSamples: 250}},
		Baselines: []types.BaselineSpec{{Name: "b", Metric: "accuracy", Expected: 0.8}},
	}

	first, cost1, err := SimulatedExecutor{}.Execute(context.Background(), design)
	require.NoError(t, err)
	second, cost2, err := SimulatedExecutor{}.Execute(context.Background(), design)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, cost1, cost2)
	assert.Equal(t, 250, first.SampleSize)
	assert.Contains(t, first.Metrics, "accuracy")
}

func TestAnalysisStrongVerdictValidatesHypothesis(t *testing.T) {
	model := &scriptedModel{responses: []string{"The effect is large and robust."}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	h := seedHypothesis(t, st, project.ID)
	design := seedReadyDesign(t, st, project.ID, h.ID)

	ctx := context.Background()
	run := completedRun(t, st, project.ID, design.ID, types.RunResults{
		Metrics:      map[string]float64{"accuracy": 0.91},
		SampleSize:   400,
		EffectMean:   0.9,
		EffectStdDev: 1.0,
	})

	out, err := NewAnalysis(deps).Run(ctx, project.ID)
	require.NoError(t, err)

	analysis, err := st.GetAnalysis(ctx, out.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictAcceptStrong, analysis.Decision)
	assert.Equal(t, run.ID, analysis.RunID)
	assert.Equal(t, "The effect is large and robust.", analysis.Insights)
	require.Len(t, analysis.Baselines, 1)
	assert.InDelta(t, 0.91-0.85, analysis.Baselines[0].Delta, 1e-9)
	assert.InDelta(t, 0.95, analysis.Interval.Level, 1e-9)

	updated, err := st.GetHypothesis(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HypothesisValidated, updated.Status)
}

func TestAnalysisInconclusiveMarksHypothesisTested(t *testing.T) {
	model := &scriptedModel{responses: []string{"Needs more data."}}
	deps, st := testDeps(t, model, nil)
	project := seedProject(t, st)
	h := seedHypothesis(t, st, project.ID)
	design := seedReadyDesign(t, st, project.ID, h.ID)

	ctx := context.Background()
	// z = 0.181 * sqrt(100) = 1.81 gives p just above 0.05.
	completedRun(t, st, project.ID, design.ID, types.RunResults{
		Metrics:      map[string]float64{"accuracy": 0.86},
		SampleSize:   100,
		EffectMean:   0.181,
		EffectStdDev: 1.0,
	})

	out, err := NewAnalysis(deps).Run(ctx, project.ID)
	require.NoError(t, err)

	analysis, err := st.GetAnalysis(ctx, out.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictInconclusive, analysis.Decision)

	updated, err := st.GetHypothesis(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HypothesisTested, updated.Status)
}

func TestAnalysisInsightPromptIsDeterministic(t *testing.T) {
	results := types.RunResults{
		Metrics:    map[string]float64{"recall": 0.7, "accuracy": 0.9, "latency": 1.2},
		SampleSize: 100,
	}
	design := types.ExperimentDesign{Methodology: "ablation"}

	s := &Analysis{}
	prompt := s.insightPrompt(design, results, 0.05, 0.2, types.VerdictAcceptWeak)
	assert.Equal(t, prompt, s.insightPrompt(design, results, 0.05, 0.2, types.VerdictAcceptWeak))

	// Metrics are listed in name order.
	acc := strings.Index(prompt, "- accuracy:")
	lat := strings.Index(prompt, "- latency:")
	rec := strings.Index(prompt, "- recall:")
	require.NotEqual(t, -1, acc)
	assert.Less(t, acc, lat)
	assert.Less(t, lat, rec)
}

func completedRun(t *testing.T, st *store.Store, projectID, designID string, results types.RunResults) types.ExperimentRun {
	t.Helper()
	ctx := context.Background()
	run := types.ExperimentRun{
		ID:        uuid.NewString(),
		DesignID:  designID,
		ProjectID: projectID,
		Platform:  "simulated",
		Status:    types.RunPending,
	}
	require.NoError(t, st.PutRun(ctx, run))
	run.Status = types.RunRunning
	run.StartedAt = nowUTC()
	require.NoError(t, st.PutRun(ctx, run))
	run.Status = types.RunCompleted
	run.CompletedAt = nowUTC()
	run.Results = &results
	require.NoError(t, st.PutRun(ctx, run))
	return run
}
