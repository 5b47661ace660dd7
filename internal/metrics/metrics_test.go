package metrics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// exactMidP evaluates the mid-p value by direct summation
func exactMidP(b, c int) float64 {
	n := b + c
	x := min(b, c)
	pmf := func(k int) float64 {
		lg := func(v int) float64 { r, _ := math.Lgamma(float64(v + 1)); return r }
		return math.Exp(lg(n) - lg(k) - lg(n-k) - float64(n)*math.Ln2)
	}
	cdf := 0.0
	for k := 0; k <= x; k++ {
		cdf += pmf(k)
	}
	return math.Min(1, 2*cdf-pmf(x))
}

func TestMcNemarMidP_Degenerate(t *testing.T) {
	assert.Equal(t, 1.0, McNemarMidP(0, 0))
}

func TestMcNemarMidP_Symmetric(t *testing.T) {
	for b := 0; b <= 40; b++ {
		for c := 0; c <= 40; c++ {
			assert.Equal(t, McNemarMidP(b, c), McNemarMidP(c, b), "b=%d c=%d", b, c)
		}
	}
}

func TestMcNemarMidP_MatchesDirectSum(t *testing.T) {
	tests := []struct{ b, c int }{{0, 20}, {30, 71}, {5, 5}, {1, 0}, {12, 3}, {100, 80}}
	for _, tt := range tests {
		p := McNemarMidP(tt.b, tt.c)
		assert.InDelta(t, exactMidP(tt.b, tt.c), p, 1e-10, "b=%d c=%d", tt.b, tt.c)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.InDelta(t, math.Pow(0.5, 20), McNemarMidP(0, 20), 1e-15)
}

func TestMutualInformation_ZeroWhenPosteriorIsPrior(t *testing.T) {
	prior := [][]float64{{0.2, 0.3, 0.5}, {0.2, 0.3, 0.5}}
	mi, err := MutualInformation(prior, prior)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mi)
}

func TestMutualInformation_ZeroEntries(t *testing.T) {
	post := [][]float64{{1, 0}, {0, 1}}
	prior := [][]float64{{0.5, 0.5}, {0.5, 0.5}}
	mi, err := MutualInformation(post, prior)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mi, 1e-12)
	assert.False(t, math.IsNaN(mi))
}

func TestMutualInformation_NonNegativeOnRandomSimplex(t *testing.T) {
	rng := rand.New(rand.NewSource(2020))
	for trial := 0; trial < 200; trial++ {
		n, k := 1+rng.Intn(40), 2+rng.Intn(5)
		post := make([][]float64, n)
		labels := make([]int, n)
		for i := range post {
			row := make([]float64, k)
			sum := 0.0
			for j := range row {
				if rng.Float64() < 0.2 {
					continue
				}
				row[j] = rng.ExpFloat64()
				sum += row[j]
			}
			if sum == 0 {
				row[0], sum = 1, 1
			}
			for j := range row {
				row[j] /= sum
			}
			post[i] = row
			labels[i] = i % k
		}
		prior, err := PriorFromLabels(labels, k)
		require.NoError(t, err)
		mi, err := MutualInformation(post, prior)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, mi, -1e-12, "trial %d", trial)
	}
}

func TestMutualInformation_Errors(t *testing.T) {
	_, err := MutualInformation([][]float64{{0.5, 0.5}}, [][]float64{{1, 0}})
	assert.True(t, errors.HasCode(err, errors.CodeNumericDegeneracy))

	_, err = MutualInformation([][]float64{{1}}, nil)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))
}

func TestPriorFromLabels(t *testing.T) {
	prior, err := PriorFromLabels([]int{0, 1, 1, 3}, 4)
	require.NoError(t, err)
	require.Len(t, prior, 4)
	assert.Equal(t, []float64{0.25, 0.5, 0, 0.25}, prior[2])

	_, err = PriorFromLabels([]int{0, 4}, 4)
	assert.Error(t, err)
}

func TestDiscordantCounts(t *testing.T) {
	base := &cv.CanonicalResult{ClassCount: 2, Rows: []cv.ResultRow{
		{TrueLabel: 0, PredLabel: 0}, {TrueLabel: 1, PredLabel: 0}, {TrueLabel: 1, PredLabel: 1}, {TrueLabel: 0, PredLabel: 1},
	}}
	other := &cv.CanonicalResult{ClassCount: 2, Rows: []cv.ResultRow{
		{TrueLabel: 0, PredLabel: 1}, {TrueLabel: 1, PredLabel: 1}, {TrueLabel: 1, PredLabel: 1}, {TrueLabel: 0, PredLabel: 0},
	}}
	b, c, err := DiscordantCounts(base, other)
	require.NoError(t, err)
	assert.Equal(t, 1, b)
	assert.Equal(t, 2, c)

	other.Rows[2].TrueLabel = 0
	_, _, err = DiscordantCounts(base, other)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))
}

func TestDiscordantCounts_SampleOrder(t *testing.T) {
	// same true labels, samples 7 and 3 listed in opposite orders
	base := &cv.CanonicalResult{ClassCount: 2, Rows: []cv.ResultRow{
		{SampleID: 7, TrueLabel: 1, PredLabel: 1}, {SampleID: 3, TrueLabel: 1, PredLabel: 0},
	}}
	other := &cv.CanonicalResult{ClassCount: 2, Rows: []cv.ResultRow{
		{SampleID: 3, TrueLabel: 1, PredLabel: 1}, {SampleID: 7, TrueLabel: 1, PredLabel: 0},
	}}
	_, _, err := DiscordantCounts(base, other)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))

	other.Rows[0], other.Rows[1] = other.Rows[1], other.Rows[0]
	b, c, err := DiscordantCounts(base, other)
	require.NoError(t, err)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, c)
}

func TestCapSignificanceAndLogit(t *testing.T) {
	assert.Equal(t, 0.999, CapSignificance(1.0, 0))
	assert.Equal(t, 0.2, CapSignificance(0.2, 0.999))
	assert.Equal(t, 0.9, CapSignificance(1.0, 0.9))

	assert.InDelta(t, 0, Logit(0.5, 0), 1e-15)
	assert.InDelta(t, math.Log(0.999/0.001), Logit(0.999, 0), 1e-9)
	assert.False(t, math.IsInf(Logit(0, 0), 0))
	assert.False(t, math.IsInf(Logit(1, 0), 0))
}

func TestAccuracy(t *testing.T) {
	res := &cv.CanonicalResult{ClassCount: 2, Rows: []cv.ResultRow{
		{TrueLabel: 0, PredLabel: 0}, {TrueLabel: 1, PredLabel: 0},
	}}
	assert.Equal(t, 0.5, Accuracy(res))
	assert.Equal(t, 0.0, Accuracy(&cv.CanonicalResult{ClassCount: 2}))
}
