package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

func sampleDataset() *cv.Dataset {
	return &cv.Dataset{
		SampleIDs:    []cv.SampleIndex{0, 1, 2, 3},
		Names:        []string{"a", "b", "c", "d"},
		Labels:       []int{0, 1, 0, 1},
		Features:     [][]float64{{1, 10, 5}, {2, 20, 5}, {3, 30, 5}, {4, 40, 5}},
		FeatureNames: []string{"f1", "f2", "f3"},
	}
}

func TestReadSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sel.csv")
	require.NoError(t, os.WriteFile(path, []byte("2, 0\n1\n"), 0o644))
	cols, err := ReadSelection(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, cols)

	require.NoError(t, os.WriteFile(path, []byte("1,x\n"), 0o644))
	_, err = ReadSelection(path)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestSelectFeatures(t *testing.T) {
	out, err := SelectFeatures(sampleDataset(), []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"f3", "f1"}, out.FeatureNames)
	assert.Equal(t, []float64{5, 3}, out.Features[2])

	_, err = SelectFeatures(sampleDataset(), []int{3})
	assert.Error(t, err)
}

func TestPermute_FollowsPermutationOrder(t *testing.T) {
	ds := sampleDataset()
	perm := cv.Permutation{Kind: cv.Bootstrap, Indices: []cv.SampleIndex{3, 3, 0, 2}}
	out, err := Permute(ds, perm)
	require.NoError(t, err)

	assert.Equal(t, []cv.SampleIndex{3, 3, 0, 2}, out.SampleIDs)
	assert.Equal(t, []string{"d", "d", "a", "c"}, out.Names)
	assert.Equal(t, []int{1, 1, 0, 0}, out.Labels)

	// rows are copies so standardizing one iteration leaves the source intact
	out.Features[0][0] = -1
	assert.Equal(t, 4.0, ds.Features[3][0])
	assert.Equal(t, 4.0, out.Features[1][0])
}

func TestPermute_RejectsInvalid(t *testing.T) {
	perm := cv.Permutation{Kind: cv.Reshuffle, Indices: []cv.SampleIndex{0, 0, 1, 2}}
	_, err := Permute(sampleDataset(), perm)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))
}

func TestStandardize(t *testing.T) {
	ds := sampleDataset()
	constant, err := Standardize(ds)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, constant)

	for j := 0; j < 2; j++ {
		var sum, sq float64
		for _, row := range ds.Features {
			sum += row[j]
		}
		mean := sum / 4
		for _, row := range ds.Features {
			sq += (row[j] - mean) * (row[j] - mean)
		}
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, math.Sqrt(sq/4), 1e-12)
	}
	for _, row := range ds.Features {
		assert.Equal(t, 0.0, row[2])
	}
}
