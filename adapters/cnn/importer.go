// Package cnn imports predictions of the externally trained convolutional
// network. The network is a black box: it produces one prediction table per
// resampling iteration and no feature relevance.
package cnn

import (
	stderrors "errors"
	"os"
	"strconv"
	"strings"

	"morphocv/adapters/resultstore"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// Importer copies external prediction tables into the result store under
// the experiment's canonical names
type Importer struct {
	store     ports.ResultStore
	tolerance float64
	logger    *internal.Logger
}

// NewImporter creates an importer writing to store
func NewImporter(store ports.ResultStore, tolerance float64, logger *internal.Logger) *Importer {
	if tolerance <= 0 {
		tolerance = cv.DefaultProbabilityTolerance
	}
	return &Importer{store: store, tolerance: tolerance, logger: logger.WithComponent("cnn")}
}

// SourceFile substitutes the iteration id into a source pattern
func SourceFile(pattern string, iteration int) string {
	return strings.ReplaceAll(pattern, cv.IterationPlaceholder, strconv.Itoa(iteration))
}

// ImportIteration reads one external table (columns in any order), validates
// it and stores it in canonical form
func (im *Importer) ImportIteration(desc cv.ExperimentDescriptor, sourcePattern string, iteration, expectedRows int) (*cv.CanonicalResult, error) {
	path := SourceFile(sourcePattern, iteration)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataIntegrityf("cnn: %s iteration %d: %v", desc.Key(), iteration, err)
	}
	result, err := resultstore.DecodePredictions(f)
	f.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "cnn: %s iteration %d: %s", desc.Key(), iteration, path)
	}
	if err := result.Validate(expectedRows, im.tolerance); err != nil {
		return nil, errors.Wrapf(err, "cnn: %s iteration %d: %s", desc.Key(), iteration, path)
	}
	if err := im.store.WritePredictions(desc.PredictionFile(iteration), result); err != nil {
		return nil, err
	}
	im.logger.Info("imported %s iteration %d: %d rows, %d classes", desc.Key(), iteration, result.Len(), result.ClassCount)
	return result, nil
}

// Import imports every iteration. A failing iteration is reported and the
// rest still run; the returned error joins every failure.
func (im *Importer) Import(desc cv.ExperimentDescriptor, sourcePattern string, iterationIDs []int, expectedRows int) error {
	if desc.Classifier() != cv.FamilyCNN {
		return errors.ConfigInvalidf("cnn: experiment %s is a %s experiment", desc.Key(), desc.Classifier())
	}
	if !strings.Contains(sourcePattern, cv.IterationPlaceholder) {
		return errors.ConfigInvalidf("cnn: source pattern %q lacks %s", sourcePattern, cv.IterationPlaceholder)
	}
	var errs []error
	for _, it := range iterationIDs {
		if _, err := im.ImportIteration(desc, sourcePattern, it, expectedRows); err != nil {
			im.logger.Error("%v", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
