// Package dataset prepares specimen tables for one resampling iteration:
// feature selection, permutation into the shared sample order and
// standardization.
package dataset

import (
	"os"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// minScale is the smallest standard deviation used as a divisor. Columns
// below it are centred only.
const minScale = 1e-12

// ReadSelection parses a feature selection file: 0-based column indices
// separated by commas or whitespace
func ReadSelection(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigInvalidf("read feature selection %s: %v", path, err)
	}
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, errors.ConfigInvalidf("feature selection %s is empty", path)
	}
	cols := make([]int, len(fields))
	for i, f := range fields {
		c, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.ConfigInvalidf("feature selection %s: %q is not a column index", path, f)
		}
		cols[i] = c
	}
	return cols, nil
}

// SelectFeatures keeps only the given feature columns, in the given order
func SelectFeatures(ds *cv.Dataset, cols []int) (*cv.Dataset, error) {
	if len(cols) == 0 {
		return ds, nil
	}
	for _, c := range cols {
		if c < 0 || c >= ds.Width() {
			return nil, errors.ConfigInvalidf("selected column %d outside [0,%d)", c, ds.Width())
		}
	}
	out := &cv.Dataset{
		SampleIDs:    ds.SampleIDs,
		Names:        ds.Names,
		Labels:       ds.Labels,
		Features:     make([][]float64, ds.Len()),
		FeatureNames: make([]string, len(cols)),
	}
	for j, c := range cols {
		out.FeatureNames[j] = ds.FeatureNames[c]
	}
	for i, row := range ds.Features {
		sel := make([]float64, len(cols))
		for j, c := range cols {
			sel[j] = row[c]
		}
		out.Features[i] = sel
	}
	return out, nil
}

// Permute reorders the rows of ds into permutation order. Row i of the
// result is sample perm.Indices[i]; bootstrap permutations repeat rows.
func Permute(ds *cv.Dataset, perm cv.Permutation) (*cv.Dataset, error) {
	if err := perm.Validate(ds.Len()); err != nil {
		return nil, errors.DataIntegrity(err.Error())
	}
	n := perm.Len()
	out := &cv.Dataset{
		SampleIDs:    make([]cv.SampleIndex, n),
		Labels:       make([]int, n),
		Features:     make([][]float64, n),
		FeatureNames: ds.FeatureNames,
	}
	if ds.Names != nil {
		out.Names = make([]string, n)
	}
	for pos, idx := range perm.Indices {
		out.SampleIDs[pos] = ds.SampleIDs[idx]
		out.Labels[pos] = ds.Labels[idx]
		row := make([]float64, len(ds.Features[idx]))
		copy(row, ds.Features[idx])
		out.Features[pos] = row
		if ds.Names != nil {
			out.Names[pos] = ds.Names[idx]
		}
	}
	return out, nil
}

// Standardize scales every feature column to zero mean and unit population
// standard deviation, in place. It returns the indices of constant columns,
// which are centred but not scaled.
func Standardize(ds *cv.Dataset) ([]int, error) {
	if ds.Len() == 0 {
		return nil, errors.DataIntegrity("cannot standardize an empty dataset")
	}
	var constant []int
	column := make([]float64, ds.Len())
	for j := 0; j < ds.Width(); j++ {
		for i, row := range ds.Features {
			column[i] = row[j]
		}
		mean, err := stats.Mean(column)
		if err != nil {
			return nil, errors.DataIntegrityf("feature %s: %v", ds.FeatureNames[j], err)
		}
		std, err := stats.StandardDeviationPopulation(column)
		if err != nil {
			return nil, errors.DataIntegrityf("feature %s: %v", ds.FeatureNames[j], err)
		}
		if std < minScale {
			std = 1
			constant = append(constant, j)
		}
		for _, row := range ds.Features {
			row[j] = (row[j] - mean) / std
		}
	}
	return constant, nil
}
