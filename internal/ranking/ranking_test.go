// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-pilot/pkg/types"
)

func idea(id string, n, f, i float64, created time.Time) types.Idea {
	return types.Idea{ID: id, Novelty: n, Feasibility: f, Impact: i, CreatedAt: created}
}

func TestOverallWeights(t *testing.T) {
	assert.InDelta(t, 7.0, Overall(8, 6, 7), 1e-9)
	assert.InDelta(t, 6.1, Overall(5, 9, 4), 1e-9)
	assert.InDelta(t, 7.6, Overall(8, 6, 9), 1e-9)
	assert.InDelta(t, 10.0, Overall(10, 10, 10), 1e-9)
	assert.InDelta(t, 1.0, Overall(1, 1, 1), 1e-9)
}

func TestRankOrdersByOverall(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ideas := []types.Idea{
		idea("idea1", 8, 6, 7, base),
		idea("idea2", 5, 9, 4, base.Add(time.Second)),
		idea("idea3", 8, 6, 9, base.Add(2*time.Second)),
	}

	ranked, err := Rank(ideas)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "idea3", ranked[0].ID)
	assert.InDelta(t, 7.6, ranked[0].Overall, 1e-9)
	assert.Equal(t, "idea1", ranked[1].ID)
	assert.InDelta(t, 7.0, ranked[1].Overall, 1e-9)
	assert.Equal(t, "idea2", ranked[2].ID)
	assert.InDelta(t, 6.1, ranked[2].Overall, 1e-9)
}

func TestRankTieBreaks(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Same overall (7.0): higher novelty wins.
	byNovelty := []types.Idea{
		idea("low-novelty", 6, 8, 7, base),  // 0.35*6+0.35*8+0.30*7 = 7.0
		idea("high-novelty", 8, 6, 7, base), // 7.0
	}
	ranked, err := Rank(byNovelty)
	require.NoError(t, err)
	assert.Equal(t, "high-novelty", ranked[0].ID)

	// Same overall and novelty: earlier creation wins.
	byCreation := []types.Idea{
		idea("later", 8, 6, 7, base.Add(time.Hour)),
		idea("earlier", 8, 6, 7, base),
	}
	ranked, err = Rank(byCreation)
	require.NoError(t, err)
	assert.Equal(t, "earlier", ranked[0].ID)

	// Fully tied: input order is preserved.
	tied := []types.Idea{
		idea("first", 8, 6, 7, base),
		idea("second", 8, 6, 7, base),
	}
	ranked, err = Rank(tied)
	require.NoError(t, err)
	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
}

func TestRankRejectsOutOfRangeScores(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   types.Idea
	}{
		{"novelty too high", idea("x", 11, 5, 5, base)},
		{"feasibility too low", idea("x", 5, 0.5, 5, base)},
		{"impact negative", idea("x", 5, 5, -1, base)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Rank([]types.Idea{tc.in})
			require.Error(t, err)
			var scoreErr *ScoreError
			assert.ErrorAs(t, err, &scoreErr)
		})
	}

	// Boundary values are accepted.
	_, err := Rank([]types.Idea{idea("lo", 1, 1, 1, base), idea("hi", 10, 10, 10, base)})
	assert.NoError(t, err)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in := []types.Idea{idea("a", 3, 4, 5, base), idea("b", 9, 9, 9, base)}

	_, err := Rank(in)
	require.NoError(t, err)
	assert.Equal(t, "a", in[0].ID)
	assert.Zero(t, in[0].Overall)
}
