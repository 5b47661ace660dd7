package folds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

func TestPartition_209By10(t *testing.T) {
	folds, err := Partition(209, 10)
	require.NoError(t, err)
	require.Len(t, folds, 10)

	for i := 0; i < 9; i++ {
		assert.Equal(t, 21, folds[i].Size(), "fold %d", i)
		assert.Equal(t, i*21, folds[i].Start)
	}
	assert.Equal(t, 189, folds[9].Start)
	assert.Equal(t, 209, folds[9].End)
}

func TestPartition_CoversRangeExactly(t *testing.T) {
	for n := 1; n <= 60; n++ {
		for k := 1; k <= n; k++ {
			folds, err := Partition(n, k)
			require.NoError(t, err, "n=%d k=%d", n, k)
			require.Len(t, folds, k, "n=%d k=%d", n, k)

			next := 0
			for i, f := range folds {
				assert.Equal(t, i, f.Index)
				assert.Equal(t, next, f.Start, "gap or overlap at n=%d k=%d fold %d", n, k, i)
				assert.Greater(t, f.End, f.Start, "empty fold at n=%d k=%d fold %d", n, k, i)
				assert.LessOrEqual(t, f.End, n)
				next = f.End
			}
			assert.Equal(t, n, next, "union short of n=%d k=%d", n, k)
		}
	}
}

func TestPartition_BalancedFallback(t *testing.T) {
	folds, err := Partition(9, 6)
	require.NoError(t, err)
	sizes := make([]int, len(folds))
	for i, f := range folds {
		sizes[i] = f.Size()
	}
	assert.Equal(t, []int{2, 2, 2, 1, 1, 1}, sizes)
}

func TestPartition_InvalidCounts(t *testing.T) {
	tests := []struct {
		name     string
		nSamples int
		nFolds   int
	}{
		{"zero folds", 10, 0},
		{"negative folds", 10, -2},
		{"more folds than samples", 3, 4},
		{"no samples", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Partition(tt.nSamples, tt.nFolds)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
		})
	}
}

func TestSplit(t *testing.T) {
	perm := cv.Permutation{Kind: cv.Reshuffle, Indices: []cv.SampleIndex{4, 2, 0, 3, 1}}
	train, test, err := Split(perm, cv.Fold{Index: 1, Start: 2, End: 4})
	require.NoError(t, err)
	assert.Equal(t, []cv.SampleIndex{0, 3}, test)
	assert.Equal(t, []cv.SampleIndex{4, 2, 1}, train)

	_, _, err = Split(perm, cv.Fold{Start: 3, End: 6})
	assert.Error(t, err)
}

func TestFoldOneBasedInclusive(t *testing.T) {
	from, to := cv.Fold{Start: 21, End: 42}.OneBasedInclusive()
	assert.Equal(t, 22, from)
	assert.Equal(t, 42, to)
}
