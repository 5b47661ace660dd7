package cv

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"morphocv/internal/errors"
)

// DefaultProbabilityTolerance bounds |sum(probs)-1| for a valid row
const DefaultProbabilityTolerance = 1e-6

// ResultRow is the canonical prediction record for one sample
type ResultRow struct {
	SampleID  SampleIndex
	TrueLabel int
	PredLabel int
	Probs     []float64
}

// Correct reports whether the predicted label matches the true label
func (r ResultRow) Correct() bool { return r.PredLabel == r.TrueLabel }

// CanonicalResult holds every prediction of one (experiment, iteration) in
// permutation order. The ordering is what makes paired tests valid.
type CanonicalResult struct {
	ClassCount int
	Rows       []ResultRow
}

// Len returns the number of rows
func (r *CanonicalResult) Len() int { return len(r.Rows) }

// TrueLabels returns the true label column
func (r *CanonicalResult) TrueLabels() []int {
	out := make([]int, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.TrueLabel
	}
	return out
}

// PredLabels returns the predicted label column
func (r *CanonicalResult) PredLabels() []int {
	out := make([]int, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.PredLabel
	}
	return out
}

// Posterior returns the probability matrix, one row per sample
func (r *CanonicalResult) Posterior() [][]float64 {
	out := make([][]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Probs
	}
	return out
}

// Validate checks labels and probability rows. expectedRows <= 0 skips the
// row-count check.
func (r *CanonicalResult) Validate(expectedRows int, tolerance float64) error {
	if r.ClassCount < 2 {
		return errors.DataIntegrityf("class count %d is below 2", r.ClassCount)
	}
	if expectedRows > 0 && len(r.Rows) != expectedRows {
		return errors.DataIntegrityf("result has %d rows, expected %d", len(r.Rows), expectedRows)
	}
	if tolerance <= 0 {
		tolerance = DefaultProbabilityTolerance
	}
	for i, row := range r.Rows {
		if row.TrueLabel < 0 || row.TrueLabel >= r.ClassCount {
			return errors.DataIntegrityf("row %d: true label %d outside [0,%d)", i, row.TrueLabel, r.ClassCount)
		}
		if row.PredLabel < 0 || row.PredLabel >= r.ClassCount {
			return errors.DataIntegrityf("row %d: predicted label %d outside [0,%d)", i, row.PredLabel, r.ClassCount)
		}
		if len(row.Probs) != r.ClassCount {
			return errors.DataIntegrityf("row %d: %d probabilities for %d classes", i, len(row.Probs), r.ClassCount)
		}
		sum := 0.0
		for _, p := range row.Probs {
			if math.IsNaN(p) || p < 0 {
				return errors.DataIntegrityf("row %d: invalid probability %v", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > tolerance {
			return errors.DataIntegrityf("row %d: probabilities sum to %.9f", i, sum)
		}
	}
	return nil
}

// IterationResult pairs a canonical result with its resampling iteration id
type IterationResult struct {
	Iteration int
	Result    *CanonicalResult
}

// NormalizeProbabilities scales p to sum to one. A row without usable mass
// becomes a uniform tie and the call reports true.
func NormalizeProbabilities(p []float64) bool {
	sum := floats.Sum(p)
	if !(sum > 0) || math.IsInf(sum, 0) {
		for i := range p {
			p[i] = 1 / float64(len(p))
		}
		return true
	}
	floats.Scale(1/sum, p)
	return false
}

// ArgMax returns the index of the largest probability, the lowest index on ties
func ArgMax(p []float64) int {
	return floats.MaxIdx(p)
}
