// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-pilot/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.PutProject(context.Background(), types.Project{
		ID: id, Name: "Efficient Attention", Domain: "machine_learning",
	})
	require.NoError(t, err)
}

func seedHypothesis(t *testing.T, s *Store, id, projectID string) {
	t.Helper()
	err := s.PutHypothesis(context.Background(), types.Hypothesis{
		ID:              id,
		ProjectID:       projectID,
		Title:           "Sparse attention preserves accuracy",
		Statement:       "Sparse attention matches dense accuracy at lower cost",
		NullStatement:   "Sparse attention has no effect on accuracy",
		IndependentVars: []string{"attention_pattern"},
		DependentVars:   []string{"accuracy"},
		Status:          types.HypothesisFormulated,
	})
	require.NoError(t, err)
}

func seedDesign(t *testing.T, s *Store, id, hypothesisID, projectID string) {
	t.Helper()
	err := s.PutDesign(context.Background(), types.ExperimentDesign{
		ID:           id,
		HypothesisID: hypothesisID,
		ProjectID:    projectID,
		Methodology:  "Ablate attention patterns on GLUE",
		Datasets:     []types.DatasetSpec{{Name: "GLUE", MinSamples: 1000}},
		Status:       types.DesignDesigned,
	})
	require.NoError(t, err)
}

func TestProjectRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.PutProject(ctx, types.Project{
		ID:       "proj1",
		Name:     "Efficient Attention",
		Domain:   "machine_learning",
		Metadata: map[string]any{"query": "efficient attention"},
	})
	require.NoError(t, err)

	got, err := s.GetProject(ctx, "proj1")
	require.NoError(t, err)
	assert.Equal(t, "Efficient Attention", got.Name)
	assert.Equal(t, "machine_learning", got.Domain)
	assert.Equal(t, types.ProjectActive, got.Status)
	assert.Equal(t, "efficient attention", got.Metadata["query"])
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetProject(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaperRequiresProject(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.PutPaper(ctx, types.Paper{ID: "p1", ProjectID: "ghost", Title: "X"})
	assert.ErrorIs(t, err, ErrMissingParent)

	seedProject(t, s, "proj1")
	err = s.PutPaper(ctx, types.Paper{
		ID: "p1", ProjectID: "proj1", SourceID: "2301.07041",
		Title: "Efficient Attention", Authors: []string{"Smith, J."},
		RelevanceScore: 8.5,
	})
	require.NoError(t, err)

	papers, err := s.ListPapers(ctx, "proj1")
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "2301.07041", papers[0].SourceID)
	assert.Equal(t, []string{"Smith, J."}, papers[0].Authors)
	assert.Equal(t, 8.5, papers[0].RelevanceScore)
}

func TestDesignReferentialIntegrity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")

	// Parent hypothesis missing: the write must fail.
	err := s.PutDesign(ctx, types.ExperimentDesign{
		ID: "d1", HypothesisID: "ghost", ProjectID: "proj1", Methodology: "m",
	})
	assert.ErrorIs(t, err, ErrMissingParent)

	// With a valid parent the design round-trips with identical fields.
	seedHypothesis(t, s, "h1", "proj1")
	want := types.ExperimentDesign{
		ID:           "d1",
		HypothesisID: "h1",
		ProjectID:    "proj1",
		Methodology:  "Ablate attention patterns on GLUE",
		Datasets:     []types.DatasetSpec{{Name: "GLUE", Description: "benchmark", MinSamples: 1000}},
		Baselines:    []types.BaselineSpec{{Name: "dense", Metric: "accuracy", Expected: 0.85}},
		Resources:    types.ResourceEstimate{ComputeHours: 4, MemoryGB: 16, EstimatedCostUSD: 2.5},
		Status:       types.DesignDesigned,
	}
	require.NoError(t, s.PutDesign(ctx, want))

	got, err := s.GetDesign(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, want.Methodology, got.Methodology)
	assert.Equal(t, want.Datasets, got.Datasets)
	assert.Equal(t, want.Baselines, got.Baselines)
	assert.Equal(t, want.Resources, got.Resources)
	assert.Equal(t, types.DesignDesigned, got.Status)
}

func TestHypothesisStatusTransitions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")
	seedHypothesis(t, s, "h1", "proj1")

	h, err := s.GetHypothesis(ctx, "h1")
	require.NoError(t, err)

	// formulated -> validated is allowed.
	h.Status = types.HypothesisValidated
	require.NoError(t, s.PutHypothesis(ctx, h))

	// validated -> formulated is not.
	h.Status = types.HypothesisFormulated
	err = s.PutHypothesis(ctx, h)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Rewriting with an unchanged status stays legal (last write wins).
	h.Status = types.HypothesisValidated
	h.Title = "Sparse attention preserves accuracy (revised)"
	require.NoError(t, s.PutHypothesis(ctx, h))
}

func TestRunInvariants(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")
	seedHypothesis(t, s, "h1", "proj1")
	seedDesign(t, s, "d1", "h1", "proj1")

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := s.PutRun(ctx, types.ExperimentRun{
		ID: "r1", DesignID: "d1", ProjectID: "proj1", Platform: "simulated",
		Status: types.RunCompleted, StartedAt: start, CompletedAt: start.Add(-time.Minute),
	})
	assert.Error(t, err, "completed_at before started_at must be rejected")

	err = s.PutRun(ctx, types.ExperimentRun{
		ID: "r1", DesignID: "d1", ProjectID: "proj1", Platform: "simulated",
		Status: types.RunPending, CostUSD: -1,
	})
	assert.Error(t, err, "negative cost must be rejected")

	require.NoError(t, s.PutRun(ctx, types.ExperimentRun{
		ID: "r1", DesignID: "d1", ProjectID: "proj1", Platform: "simulated",
		Status: types.RunPending,
	}))

	// pending -> completed skips running.
	err = s.PutRun(ctx, types.ExperimentRun{
		ID: "r1", DesignID: "d1", ProjectID: "proj1", Platform: "simulated",
		Status: types.RunCompleted,
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRunCheckpointsAppendOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")
	seedHypothesis(t, s, "h1", "proj1")
	seedDesign(t, s, "d1", "h1", "proj1")
	require.NoError(t, s.PutRun(ctx, types.ExperimentRun{
		ID: "r1", DesignID: "d1", ProjectID: "proj1", Platform: "simulated",
	}))

	_, err := s.AppendRunCheckpoint(ctx, "ghost", "prepare", nil)
	assert.ErrorIs(t, err, ErrMissingParent)

	steps := []string{"prepare", "execute", "collect"}
	for _, step := range steps {
		_, err := s.AppendRunCheckpoint(ctx, "r1", step, map[string]any{"step": step})
		require.NoError(t, err)
	}

	cps, err := s.ListRunCheckpoints(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	for i, cp := range cps {
		assert.Equal(t, steps[i], cp.Step)
		if i > 0 {
			assert.Greater(t, cp.Seq, cps[i-1].Seq)
		}
	}

	latest, err := s.LatestRunCheckpoint(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "collect", latest.Step)
}

func TestAnalysisRequiresRunAndHypothesis(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")
	seedHypothesis(t, s, "h1", "proj1")
	seedDesign(t, s, "d1", "h1", "proj1")
	require.NoError(t, s.PutRun(ctx, types.ExperimentRun{
		ID: "r1", DesignID: "d1", ProjectID: "proj1", Platform: "simulated",
	}))

	err := s.PutAnalysis(ctx, types.Analysis{
		ID: "a1", RunID: "ghost", ProjectID: "proj1", Decision: types.VerdictReject,
	})
	assert.ErrorIs(t, err, ErrMissingParent)

	require.NoError(t, s.PutAnalysis(ctx, types.Analysis{
		ID: "a1", RunID: "r1", ProjectID: "proj1", HypothesisID: "h1",
		PValue: 0.03, EffectSize: 0.4,
		Interval: types.ConfidenceInterval{Lower: 0.2, Upper: 0.6, Level: 0.95},
		Decision: types.VerdictAcceptStrong,
	}))

	got, err := s.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.VerdictAcceptStrong, got.Decision)
	assert.Equal(t, types.AnalysisCompleted, got.Status)
	assert.Equal(t, 0.95, got.Interval.Level)
}

func TestStageCheckpointResumeOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")

	_, err := s.LatestStageCheckpoint(ctx, "proj1")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, stage := range []string{"literature_review", "idea_generation", "hypothesis_formation"} {
		_, err := s.AppendStageCheckpoint(ctx, "proj1", stage, "")
		require.NoError(t, err)
	}

	latest, err := s.LatestStageCheckpoint(ctx, "proj1")
	require.NoError(t, err)
	assert.Equal(t, "hypothesis_formation", latest.Stage)
}

func TestIdeaOrdering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ideas := []types.Idea{
		{ID: "i1", ProjectID: "proj1", Title: "a", Novelty: 8, Feasibility: 6, Impact: 7, Overall: 7.0, CreatedAt: base},
		{ID: "i2", ProjectID: "proj1", Title: "b", Novelty: 5, Feasibility: 9, Impact: 4, Overall: 6.4, CreatedAt: base.Add(time.Second)},
		{ID: "i3", ProjectID: "proj1", Title: "c", Novelty: 8, Feasibility: 6, Impact: 9, Overall: 7.7, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, idea := range ideas {
		require.NoError(t, s.PutIdea(ctx, idea))
	}

	got, err := s.ListIdeas(ctx, "proj1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"i3", "i1", "i2"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestPipelineRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, "proj1")

	r := types.PipelineRun{ID: "run1", ProjectID: "proj1", Status: types.PipelinePending}
	require.NoError(t, s.PutPipelineRun(ctx, r))

	r.Status = types.PipelineRunning
	r.StartedAt = nowUTC()
	require.NoError(t, s.PutPipelineRun(ctx, r))

	r.Status = types.PipelineFailed
	r.Error = "stage 4 failed: model response unparseable"
	require.NoError(t, s.PutPipelineRun(ctx, r))

	r.Status = types.PipelineRunning
	err := s.PutPipelineRun(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	runs, err := s.ListPipelineRuns(ctx, "proj1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.PipelineFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "stage 4")
}
