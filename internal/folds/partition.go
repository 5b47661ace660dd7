// Package folds computes contiguous k-fold test ranges over a permutation.
package folds

import (
	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// Partition splits [0, nSamples) into nFolds contiguous half-open ranges.
//
// Fold i covers [i*span, i*span+span) with span = ceil(n/k), and every end is
// clamped to n so the last fold absorbs the remainder. When ceiling spans
// would leave trailing folds empty (n=9, k=6) the ranges are balanced
// instead, the first n%k folds taking one extra sample.
func Partition(nSamples, nFolds int) ([]cv.Fold, error) {
	if nFolds <= 0 {
		return nil, errors.ConfigInvalidf("fold count must be positive, got %d", nFolds)
	}
	if nSamples <= 0 {
		return nil, errors.ConfigInvalidf("sample count must be positive, got %d", nSamples)
	}
	if nFolds > nSamples {
		return nil, errors.ConfigInvalidf("fold count %d exceeds sample count %d", nFolds, nSamples)
	}

	span := (nSamples + nFolds - 1) / nFolds
	if (nSamples+span-1)/span < nFolds {
		return balanced(nSamples, nFolds), nil
	}

	folds := make([]cv.Fold, nFolds)
	for i := range folds {
		start := i * span
		end := start + span
		if end > nSamples {
			end = nSamples
		}
		folds[i] = cv.Fold{Index: i, Start: start, End: end}
	}
	folds[nFolds-1].End = nSamples
	return folds, nil
}

func balanced(nSamples, nFolds int) []cv.Fold {
	base, extra := nSamples/nFolds, nSamples%nFolds
	folds := make([]cv.Fold, nFolds)
	start := 0
	for i := range folds {
		size := base
		if i < extra {
			size++
		}
		folds[i] = cv.Fold{Index: i, Start: start, End: start + size}
		start += size
	}
	return folds
}

// Split returns the training and test sample indices of fold within perm.
// Both keep permutation order.
func Split(perm cv.Permutation, fold cv.Fold) (train, test []cv.SampleIndex, err error) {
	n := perm.Len()
	if fold.Start < 0 || fold.End > n || fold.Start >= fold.End {
		return nil, nil, errors.ConfigInvalidf("fold %d range [%d,%d) invalid for %d samples", fold.Index, fold.Start, fold.End, n)
	}
	test = make([]cv.SampleIndex, 0, fold.Size())
	test = append(test, perm.Indices[fold.Start:fold.End]...)
	train = make([]cv.SampleIndex, 0, n-fold.Size())
	train = append(train, perm.Indices[:fold.Start]...)
	train = append(train, perm.Indices[fold.End:]...)
	return train, test, nil
}
