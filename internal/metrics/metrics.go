// Package metrics scores canonical prediction tables: generalization
// accuracy, mutual information against the class prior and McNemar mid-p
// tests between paired classifiers.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// DefaultMaxSignificance is the display cap for p-values
const DefaultMaxSignificance = 0.999

// Accuracy returns the fraction of rows whose predicted label is the true
// label. An empty result scores 0.
func Accuracy(result *cv.CanonicalResult) float64 {
	if result.Len() == 0 {
		return 0
	}
	hits := 0
	for _, row := range result.Rows {
		if row.Correct() {
			hits++
		}
	}
	return float64(hits) / float64(result.Len())
}

// MutualInformation estimates, in bits, the information the posterior adds
// over the prior: mean over rows of sum_k post*(log2 post - log2 prior).
// Zero posterior entries contribute nothing.
func MutualInformation(post, prior [][]float64) (float64, error) {
	if len(post) != len(prior) {
		return 0, errors.DataIntegrityf("posterior has %d rows, prior %d", len(post), len(prior))
	}
	if len(post) == 0 {
		return 0, errors.DataIntegrity("mutual information of an empty table")
	}
	perRow := make([]float64, len(post))
	for i := range post {
		if len(post[i]) != len(prior[i]) {
			return 0, errors.DataIntegrityf("row %d: %d posterior classes, %d prior classes", i, len(post[i]), len(prior[i]))
		}
		var sum float64
		for k, p := range post[i] {
			if p == 0 {
				continue
			}
			q := prior[i][k]
			if q <= 0 {
				return 0, errors.NumericDegeneracy("prior probability is zero where the posterior is not")
			}
			sum += p * (math.Log2(p) - math.Log2(q))
		}
		perRow[i] = sum
	}
	return stat.Mean(perRow, nil), nil
}

// PriorFromLabels returns, for every row, the class frequency vector of
// labels. It is the reference prior used for mutual information.
func PriorFromLabels(labels []int, classCount int) ([][]float64, error) {
	if len(labels) == 0 {
		return nil, errors.DataIntegrity("no labels to estimate a prior from")
	}
	freq := make([]float64, classCount)
	for i, l := range labels {
		if l < 0 || l >= classCount {
			return nil, errors.DataIntegrityf("label %d at row %d outside [0,%d)", l, i, classCount)
		}
		freq[l]++
	}
	floats.Scale(1/float64(len(labels)), freq)
	prior := make([][]float64, len(labels))
	for i := range prior {
		prior[i] = freq
	}
	return prior, nil
}

// ResultMutualInformation scores a result against its own label frequencies
func ResultMutualInformation(result *cv.CanonicalResult) (float64, error) {
	prior, err := PriorFromLabels(result.TrueLabels(), result.ClassCount)
	if err != nil {
		return 0, err
	}
	return MutualInformation(result.Posterior(), prior)
}

// McNemarMidP is the two-sided mid-p McNemar test for b and c discordant
// pairs: 2*CDF(x) - PMF(x) of Binomial(b+c, 0.5) at x = min(b, c). With no
// discordant pairs there is no evidence of a difference and it returns 1.
func McNemarMidP(b, c int) float64 {
	n := b + c
	if n <= 0 {
		return 1.0
	}
	x := float64(min(b, c))
	dist := distuv.Binomial{N: float64(n), P: 0.5}
	p := 2*dist.CDF(x) - dist.Prob(x)
	switch {
	case math.IsNaN(p):
		return 1.0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// DiscordantCounts compares two paired results. b counts rows only base
// classifies correctly, c rows only other classifies correctly. Both results
// must list the same samples in the same order with the same true labels.
func DiscordantCounts(base, other *cv.CanonicalResult) (b, c int, err error) {
	if base.Len() != other.Len() {
		return 0, 0, errors.DataIntegrityf("paired results differ in length: %d vs %d", base.Len(), other.Len())
	}
	for i := range base.Rows {
		if base.Rows[i].SampleID != other.Rows[i].SampleID {
			return 0, 0, errors.DataIntegrityf("sample %d vs %d at row %d; results are not in the same sample order",
				base.Rows[i].SampleID, other.Rows[i].SampleID, i)
		}
		if base.Rows[i].TrueLabel != other.Rows[i].TrueLabel {
			return 0, 0, errors.DataIntegrityf("true labels differ at row %d; results are not in the same sample order", i)
		}
		baseOK, otherOK := base.Rows[i].Correct(), other.Rows[i].Correct()
		switch {
		case baseOK && !otherOK:
			b++
		case otherOK && !baseOK:
			c++
		}
	}
	return b, c, nil
}

// CapSignificance limits p to limit for storage and logit-scale plots. It
// is a reporting convention only; MetricRecords keep the raw value.
func CapSignificance(p, limit float64) float64 {
	if limit <= 0 {
		limit = DefaultMaxSignificance
	}
	return math.Min(p, limit)
}

// Logit maps p to log(p) - log(1-p), clamping both terms at eps
func Logit(p, eps float64) float64 {
	if eps <= 0 {
		eps = 1e-100
	}
	q := 1 - p
	p = math.Max(p, eps)
	q = math.Max(q, eps)
	return math.Log(p) - math.Log(q)
}
