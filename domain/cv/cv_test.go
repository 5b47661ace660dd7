package cv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResampleKind(t *testing.T) {
	tests := []struct {
		in   string
		want ResampleKind
		ok   bool
	}{
		{"reshuffle", Reshuffle, true},
		{" RSHFL ", Reshuffle, true},
		{"rsmp", Bootstrap, true},
		{"Bootstrap", Bootstrap, true},
		{"jackknife", "", false},
	}
	for _, tt := range tests {
		got, err := ParseResampleKind(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPermutationValidate(t *testing.T) {
	assert.NoError(t, Permutation{Kind: Reshuffle, Indices: []SampleIndex{2, 0, 1}}.Validate(3))
	assert.Error(t, Permutation{Kind: Reshuffle, Indices: []SampleIndex{2, 2, 1}}.Validate(3))
	assert.NoError(t, Permutation{Kind: Bootstrap, Indices: []SampleIndex{2, 2, 1}}.Validate(3))
	assert.Error(t, Permutation{Kind: Bootstrap, Indices: []SampleIndex{3, 0, 1}}.Validate(3))
	assert.Error(t, Permutation{Kind: Bootstrap, Indices: []SampleIndex{0, 1}}.Validate(3))
}

func TestCanonicalResultValidate(t *testing.T) {
	res := &CanonicalResult{ClassCount: 2, Rows: []ResultRow{
		{TrueLabel: 0, PredLabel: 1, Probs: []float64{0.4, 0.6}},
		{TrueLabel: 1, PredLabel: 1, Probs: []float64{0.1, 0.9}},
	}}
	require.NoError(t, res.Validate(2, 0))
	assert.Error(t, res.Validate(3, 0))

	res.Rows[0].Probs = []float64{0.4, 0.7}
	assert.Error(t, res.Validate(0, 0))
	assert.NoError(t, res.Validate(0, 0.2))

	res.Rows[0].Probs = []float64{0.4, 0.6}
	res.Rows[1].PredLabel = 2
	assert.Error(t, res.Validate(0, 0))
}

func TestNormalizeProbabilities(t *testing.T) {
	p := []float64{1, 3}
	assert.False(t, NormalizeProbabilities(p))
	assert.Equal(t, []float64{0.25, 0.75}, p)

	z := []float64{0, 0, 0, 0}
	assert.True(t, NormalizeProbabilities(z))
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, z)
}

func TestArgMaxLowestIndexOnTies(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{0.2, 0.4, 0.4}))
	assert.Equal(t, 0, ArgMax([]float64{0.5, 0.5}))
}

func TestFoldOneBasedInclusive(t *testing.T) {
	from, to := Fold{Start: 21, End: 42}.OneBasedInclusive()
	assert.Equal(t, 22, from)
	assert.Equal(t, 42, to)
}

func descriptor(t *testing.T, spec ExperimentSpec) ExperimentDescriptor {
	t.Helper()
	d, err := NewExperimentDescriptor(spec)
	require.NoError(t, err)
	return d
}

func TestNewExperimentDescriptor(t *testing.T) {
	d := descriptor(t, ExperimentSpec{
		Key: "netprcshfl", InputType: "GPA", Resampling: Reshuffle, Classifier: FamilyHMCMLP,
		PredPattern: "rshfl_prc_it{iter}_allpredres.csv", RelevancePattern: "rshfl_prc_it{iter}_allardres.csv",
	})
	assert.Equal(t, "netprcshfl", d.Label())
	assert.Equal(t, "rshfl_prc_it7_allpredres.csv", d.PredictionFile(7))
	assert.Equal(t, "rshfl_prc_it0_allardres.csv", d.RelevanceFile(0))
	assert.True(t, d.HasRelevance())

	bad := []ExperimentSpec{
		{Key: "", Resampling: Reshuffle, PredPattern: "x{iter}"},
		{Key: "a", Resampling: "jackknife", PredPattern: "x{iter}"},
		{Key: "a", Resampling: Reshuffle, PredPattern: "x.csv"},
		{Key: "a", Resampling: Reshuffle, PredPattern: "x{iter}", RelevancePattern: "ard.csv"},
		{Key: "a", Resampling: Reshuffle, Classifier: FamilyCNN, PredPattern: "x{iter}", RelevancePattern: "ard{iter}"},
	}
	for i, spec := range bad {
		_, err := NewExperimentDescriptor(spec)
		assert.Error(t, err, "case %d", i)
	}
}

func TestCatalogSelect(t *testing.T) {
	a := descriptor(t, ExperimentSpec{Key: "a", InputType: "GPA", Resampling: Reshuffle, Classifier: FamilyGPC, PredPattern: "a{iter}"})
	b := descriptor(t, ExperimentSpec{Key: "b", InputType: "Top GP-LVM", Resampling: Bootstrap, Classifier: FamilyGPC, PredPattern: "b{iter}"})
	c := descriptor(t, ExperimentSpec{Key: "c", InputType: "GPA", Resampling: Reshuffle, Classifier: FamilyCNN, PredPattern: "c{iter}"})

	cat, err := NewCatalog([]ExperimentDescriptor{a, b, c})
	require.NoError(t, err)

	got, err := cat.Select(Selection{"resampling": {"RESHUFFLE"}, "input_type": {"gpa"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key())
	assert.Equal(t, "c", got[1].Key())

	_, err = cat.Select(Selection{"lake": {"Tana"}})
	assert.Error(t, err)

	found, ok := cat.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, Bootstrap, found.Resampling())

	_, err = NewCatalog([]ExperimentDescriptor{a, a})
	assert.Error(t, err)
}

func TestDatasetRowsAndWithout(t *testing.T) {
	d := &Dataset{
		SampleIDs:    []SampleIndex{4, 3, 2, 1, 0},
		Labels:       []int{0, 1, 0, 1, 2},
		Features:     [][]float64{{0}, {1}, {2}, {3}, {4}},
		FeatureNames: []string{"x"},
	}
	require.NoError(t, d.Validate())
	assert.Equal(t, 3, d.ClassCount())

	test := d.Rows(1, 3)
	assert.Equal(t, []SampleIndex{3, 2}, test.SampleIDs)

	train := d.Without(1, 3)
	assert.Equal(t, []SampleIndex{4, 1, 0}, train.SampleIDs)
	assert.Equal(t, []int{0, 1, 2}, train.Labels)
	assert.Equal(t, 5, d.Len(), "source is untouched")
}
