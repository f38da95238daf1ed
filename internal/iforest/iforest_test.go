package iforest_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimozcann/seasec/internal/iforest"
)

var sample = [][]float64{
	{1, 3, 1, 0},
	{0, 50, 5, 1},
	{1, 2, 1, 0},
	{1, 4, 2, 0},
	{0, 45, 6, 1},
}

func TestFitIsDeterministic(t *testing.T) {
	a := iforest.New(iforest.WithSeed(7))
	b := iforest.New(iforest.WithSeed(7))
	require.NoError(t, a.Fit(sample))
	require.NoError(t, b.Fit(sample))
	assert.Equal(t, a.Trees, b.Trees)

	sa, err := a.DecisionFunction(sample)
	require.NoError(t, err)
	sb, err := b.DecisionFunction(sample)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestOutliersScoreLower(t *testing.T) {
	f := iforest.New()
	require.NoError(t, f.Fit(sample))
	assert.Equal(t, 5, f.SampleSize)
	assert.Len(t, f.Trees, 100)

	scores, err := f.DecisionFunction(sample)
	require.NoError(t, err)
	for _, inlier := range []int{0, 2, 3} {
		for _, outlier := range []int{1, 4} {
			assert.Less(t, scores[outlier], scores[inlier], "outlier %d vs inlier %d", outlier, inlier)
		}
	}
}

func TestScoreSamplesRange(t *testing.T) {
	f := iforest.New(iforest.WithTrees(20))
	require.NoError(t, f.Fit(sample))
	scores, err := f.ScoreSamples(sample)
	require.NoError(t, err)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, -1.0)
		assert.Less(t, s, 0.0)
	}
}

func TestReloadedForestScoresIdentically(t *testing.T) {
	f := iforest.New(iforest.WithTrees(10))
	require.NoError(t, f.Fit(sample))
	want, err := f.DecisionFunction(sample)
	require.NoError(t, err)

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	var loaded iforest.Forest
	require.NoError(t, json.Unmarshal(raw, &loaded))

	got, err := loaded.DecisionFunction(sample)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestErrors(t *testing.T) {
	f := iforest.New()
	_, err := f.DecisionFunction(sample)
	assert.True(t, errors.Is(err, iforest.ErrNotFitted))

	assert.True(t, errors.Is(f.Fit(nil), iforest.ErrEmptyInput))
	assert.True(t, errors.Is(f.Fit([][]float64{{1, 2}, {1}}), iforest.ErrDimension))

	require.NoError(t, f.Fit(sample))
	_, err = f.DecisionFunction([][]float64{{1, 2}})
	assert.True(t, errors.Is(err, iforest.ErrDimension))
}

func TestSinglePointAndConstantData(t *testing.T) {
	f := iforest.New(iforest.WithTrees(5))
	require.NoError(t, f.Fit([][]float64{{1, 1}}))
	scores, err := f.DecisionFunction([][]float64{{1, 1}, {9, 9}})
	require.NoError(t, err)
	assert.Len(t, scores, 2)

	g := iforest.New(iforest.WithTrees(5))
	require.NoError(t, g.Fit([][]float64{{2, 2}, {2, 2}, {2, 2}}))
	for _, tree := range g.Trees {
		assert.Len(t, tree.Nodes, 1)
	}
}
