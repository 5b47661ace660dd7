// Package aggregate loads stored canonical results and reduces per-fold
// relevance tables to iteration and experiment summaries.
//
// File names always come from the experiment descriptor and explicit
// iteration and fold ids. Directory listings are never consulted, so the
// order of loaded results is the order of the ids passed in.
package aggregate

import (
	"gonum.org/v1/gonum/floats"

	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/internal/metrics"
	"morphocv/ports"
)

// Aggregator reads from a result store. It holds no state between calls.
type Aggregator struct {
	store     ports.ResultStore
	tolerance float64
	logger    *internal.Logger
}

// NewAggregator creates an aggregator over store. tolerance bounds the
// probability row sums accepted on load.
func NewAggregator(store ports.ResultStore, tolerance float64, logger *internal.Logger) *Aggregator {
	if tolerance <= 0 {
		tolerance = cv.DefaultProbabilityTolerance
	}
	return &Aggregator{store: store, tolerance: tolerance, logger: logger.WithComponent("aggregate")}
}

// LoadPredictions loads the canonical result of every iteration id, in the
// order given. expectedRows <= 0 only requires all iterations to agree.
func (a *Aggregator) LoadPredictions(desc cv.ExperimentDescriptor, iterationIDs []int, expectedRows int) ([]cv.IterationResult, error) {
	if len(iterationIDs) == 0 {
		return nil, errors.ConfigInvalidf("experiment %s: no iterations requested", desc.Key())
	}
	out := make([]cv.IterationResult, 0, len(iterationIDs))
	for _, it := range iterationIDs {
		name := desc.PredictionFile(it)
		if !a.store.Exists(name) {
			return nil, errors.DataIntegrityf("experiment %s iteration %d: missing result file %s", desc.Key(), it, name)
		}
		res, err := a.store.ReadPredictions(name)
		if err != nil {
			return nil, errors.Wrapf(err, "experiment %s iteration %d", desc.Key(), it)
		}
		if err := res.Validate(expectedRows, a.tolerance); err != nil {
			return nil, errors.Wrapf(err, "experiment %s iteration %d", desc.Key(), it)
		}
		if expectedRows <= 0 {
			expectedRows = res.Len()
		}
		out = append(out, cv.IterationResult{Iteration: it, Result: res})
		a.logger.Debug("loaded %s (%d rows)", name, res.Len())
	}
	return out, nil
}

// LoadExperiments loads every descriptor for the same iteration ids
func (a *Aggregator) LoadExperiments(descs []cv.ExperimentDescriptor, iterationIDs []int, expectedRows int) ([]metrics.ExperimentResults, error) {
	out := make([]metrics.ExperimentResults, 0, len(descs))
	for _, d := range descs {
		results, err := a.LoadPredictions(d, iterationIDs, expectedRows)
		if err != nil {
			return nil, err
		}
		out = append(out, metrics.ExperimentResults{Descriptor: d, Results: results})
	}
	return out, nil
}

// CommitReads deletes the files loaded so far when the store consumes what
// it reads. Call it once the work built on those files has succeeded.
func (a *Aggregator) CommitReads() error {
	if rc, ok := a.store.(ports.ReadCommitter); ok {
		return rc.CommitReads()
	}
	return nil
}

// ForgetReads keeps the files loaded so far, so a failed run can be repeated
func (a *Aggregator) ForgetReads() {
	if rc, ok := a.store.(ports.ReadCommitter); ok {
		rc.ForgetReads()
	}
}

// RelevanceSummary holds the reduced relevance of one experiment
type RelevanceSummary struct {
	Experiment string
	// Folds[i] is the per-fold table of IterationIDs[i]
	IterationIDs []int
	Folds        []*cv.RelevanceTable
	// Iterations has one row per iteration: the mean over its folds
	Iterations *cv.RelevanceTable
	// Mean is the single experiment row: the mean over iterations
	Mean *cv.RelevanceTable
	// Populations[i] has one row per class for IterationIDs[i]; nil unless requested
	Populations []*cv.RelevanceTable
}

// ReduceRelevance reads the per-fold relevance of every iteration and
// reduces it by arithmetic means. It writes the iteration and experiment
// tables, and per-population tables when perPopulation is set.
func (a *Aggregator) ReduceRelevance(desc cv.ExperimentDescriptor, iterationIDs []int, nFolds int, perPopulation bool) (*RelevanceSummary, error) {
	if !desc.HasRelevance() {
		return nil, errors.ConfigInvalidf("experiment %s produces no relevance output", desc.Key())
	}
	if len(iterationIDs) == 0 || nFolds <= 0 {
		return nil, errors.ConfigInvalidf("experiment %s: need iterations and a positive fold count", desc.Key())
	}

	sum := &RelevanceSummary{Experiment: desc.Key(), IterationIDs: append([]int(nil), iterationIDs...)}
	var columns []string
	var iterRows [][]float64
	for _, it := range iterationIDs {
		name := desc.RelevanceFile(it)
		if !a.store.Exists(name) {
			return nil, errors.DataIntegrityf("experiment %s iteration %d: missing relevance file %s", desc.Key(), it, name)
		}
		table, err := a.store.ReadRelevance(name)
		if err != nil {
			return nil, errors.Wrapf(err, "experiment %s iteration %d", desc.Key(), it)
		}
		if len(table.Rows) != nFolds {
			return nil, errors.DataIntegrityf("experiment %s iteration %d: %d fold rows, expected %d", desc.Key(), it, len(table.Rows), nFolds)
		}
		if columns == nil {
			columns = table.Columns
		} else if !sameColumns(columns, table.Columns) {
			return nil, errors.DataIntegrityf("experiment %s iteration %d: relevance columns differ from earlier iterations", desc.Key(), it)
		}
		sum.Folds = append(sum.Folds, table)
		iterRows = append(iterRows, ColumnMeans(table.Rows))

		if perPopulation {
			pop, err := a.reducePopulation(desc, it, nFolds)
			if err != nil {
				return nil, err
			}
			if err := a.store.WriteRelevance(desc.PopulationRelevanceFile(it), pop); err != nil {
				return nil, err
			}
			sum.Populations = append(sum.Populations, pop)
		}
	}

	sum.Iterations = &cv.RelevanceTable{Columns: columns, Rows: iterRows}
	sum.Mean = &cv.RelevanceTable{Columns: columns, Rows: [][]float64{ColumnMeans(iterRows)}}
	if err := a.store.WriteRelevance(desc.RelevanceSumFile(), sum.Iterations); err != nil {
		return nil, err
	}
	if err := a.store.WriteRelevance(desc.RelevanceMeanFile(), sum.Mean); err != nil {
		return nil, err
	}
	a.logger.Info("reduced relevance of %s over %d iterations x %d folds", desc.Key(), len(iterationIDs), nFolds)
	return sum, nil
}

// reducePopulation averages the per-class fold tables of one iteration
func (a *Aggregator) reducePopulation(desc cv.ExperimentDescriptor, it, nFolds int) (*cv.RelevanceTable, error) {
	var out *cv.RelevanceTable
	for f := 0; f < nFolds; f++ {
		name := desc.FoldClassRelevanceFile(it, f)
		if !a.store.Exists(name) {
			return nil, errors.DataIntegrityf("experiment %s iteration %d fold %d: missing class relevance %s", desc.Key(), it, f, name)
		}
		table, err := a.store.ReadRelevance(name)
		if err != nil {
			return nil, errors.Wrapf(err, "experiment %s iteration %d fold %d", desc.Key(), it, f)
		}
		if out == nil {
			out = &cv.RelevanceTable{Columns: table.Columns, Rows: make([][]float64, len(table.Rows))}
			for k := range out.Rows {
				out.Rows[k] = make([]float64, len(table.Columns))
			}
		}
		if len(table.Rows) != len(out.Rows) || !sameColumns(out.Columns, table.Columns) {
			return nil, errors.DataIntegrityf("experiment %s iteration %d fold %d: class relevance shape differs", desc.Key(), it, f)
		}
		for k, row := range table.Rows {
			floats.Add(out.Rows[k], row)
		}
	}
	for _, row := range out.Rows {
		floats.Scale(1/float64(nFolds), row)
	}
	return out, nil
}

// ColumnMeans returns the arithmetic mean of every column of rows
func ColumnMeans(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	mean := make([]float64, len(rows[0]))
	for _, row := range rows {
		floats.Add(mean, row)
	}
	floats.Scale(1/float64(len(rows)), mean)
	return mean
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
