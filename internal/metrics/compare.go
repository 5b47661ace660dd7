package metrics

import (
	"gonum.org/v1/gonum/stat"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// ExperimentResults are the loaded canonical results of one experiment in
// iteration order
type ExperimentResults struct {
	Descriptor cv.ExperimentDescriptor
	Results    []cv.IterationResult
}

// MeanAccuracy averages accuracy over the iterations
func (e ExperimentResults) MeanAccuracy() float64 {
	accs := make([]float64, len(e.Results))
	for i, r := range e.Results {
		accs[i] = Accuracy(r.Result)
	}
	return stat.Mean(accs, nil)
}

// Group names a selection of experiments compared against one baseline
type Group struct {
	Name      string
	Selection cv.Selection
}

// DefaultGroupName labels records when no groups are configured
const DefaultGroupName = "group_1"

// CompareToBaseline scores every experiment and tests it against the
// experiment with the lowest mean accuracy (ties keep the first). All
// experiments must share one resampling kind, since paired tests need the
// same sample order.
func CompareToBaseline(group string, exps []ExperimentResults) ([]cv.MetricRecord, error) {
	if len(exps) == 0 {
		return nil, errors.ConfigInvalidf("group %s has no experiments to compare", group)
	}
	kind := exps[0].Descriptor.Resampling()
	for _, e := range exps[1:] {
		if e.Descriptor.Resampling() != kind {
			return nil, errors.ConfigInvalidf("group %s mixes %s (%s) and %s (%s) resampling; paired tests need one sample order",
				group, exps[0].Descriptor.Key(), kind, e.Descriptor.Key(), e.Descriptor.Resampling())
		}
	}

	baseIdx := -1
	baseAcc := 0.0
	for i, e := range exps {
		if len(e.Results) == 0 {
			return nil, errors.DataIntegrityf("experiment %s has no results", e.Descriptor.Key())
		}
		if acc := e.MeanAccuracy(); baseIdx < 0 || acc < baseAcc {
			baseIdx, baseAcc = i, acc
		}
	}
	base := exps[baseIdx]
	baseKey := base.Descriptor.Key()
	baseByIteration := make(map[int]*cv.CanonicalResult, len(base.Results))
	for _, r := range base.Results {
		baseByIteration[r.Iteration] = r.Result
	}

	var records []cv.MetricRecord
	for i, e := range exps {
		key := e.Descriptor.Key()
		for _, r := range e.Results {
			mi, err := ResultMutualInformation(r.Result)
			if err != nil {
				return nil, errors.Wrapf(err, "experiment %s iteration %d", key, r.Iteration)
			}
			rec := cv.MetricRecord{
				Group:             group,
				Experiment:        key,
				Baseline:          baseKey,
				Iteration:         r.Iteration,
				Accuracy:          Accuracy(r.Result),
				MutualInformation: mi,
				Significance:      1.0,
			}
			if i != baseIdx {
				baseResult, ok := baseByIteration[r.Iteration]
				if !ok {
					return nil, errors.DataIntegrityf("baseline %s has no iteration %d to pair with %s", baseKey, r.Iteration, key)
				}
				b, c, err := DiscordantCounts(baseResult, r.Result)
				if err != nil {
					return nil, errors.Wrapf(err, "%s vs baseline %s iteration %d", key, baseKey, r.Iteration)
				}
				rec.BaselineOnly, rec.OtherOnly = b, c
				rec.Significance = McNemarMidP(b, c)
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// CompareGroups runs CompareToBaseline once per group over the experiments
// the group selects. Without groups all experiments form one group.
func CompareGroups(exps []ExperimentResults, groups []Group) ([]cv.MetricRecord, error) {
	if len(groups) == 0 {
		return CompareToBaseline(DefaultGroupName, exps)
	}
	var records []cv.MetricRecord
	for _, g := range groups {
		var members []ExperimentResults
		for _, e := range exps {
			ok, err := g.Selection.Matches(e.Descriptor)
			if err != nil {
				return nil, errors.ConfigInvalidf("group %s: %v", g.Name, err)
			}
			if ok {
				members = append(members, e)
			}
		}
		recs, err := CompareToBaseline(g.Name, members)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// DefaultComparison tests one experiment iteration against always
// predicting the majority class
type DefaultComparison struct {
	Experiment      string
	Iteration       int
	DefaultLabel    int
	DefaultAccuracy float64
	Accuracy        float64
	DefaultOnly     int
	OtherOnly       int
	Significance    float64
}

// MajorityLabel returns the most frequent label, the lowest one on ties
func MajorityLabel(labels []int) int {
	counts := map[int]int{}
	best, bestCount := 0, -1
	for _, l := range labels {
		counts[l]++
	}
	for l, n := range counts {
		if n > bestCount || (n == bestCount && l < best) {
			best, bestCount = l, n
		}
	}
	return best
}

// CompareToDefaultPredictor tests every iteration of every experiment
// against the majority-label predictor of that iteration
func CompareToDefaultPredictor(exps []ExperimentResults) ([]DefaultComparison, error) {
	var out []DefaultComparison
	for _, e := range exps {
		for _, r := range e.Results {
			truth := r.Result.TrueLabels()
			label := MajorityLabel(truth)
			def := &cv.CanonicalResult{ClassCount: r.Result.ClassCount, Rows: make([]cv.ResultRow, len(truth))}
			for i, t := range truth {
				def.Rows[i] = cv.ResultRow{SampleID: r.Result.Rows[i].SampleID, TrueLabel: t, PredLabel: label}
			}
			b, c, err := DiscordantCounts(def, r.Result)
			if err != nil {
				return nil, errors.Wrapf(err, "experiment %s iteration %d", e.Descriptor.Key(), r.Iteration)
			}
			out = append(out, DefaultComparison{
				Experiment:      e.Descriptor.Key(),
				Iteration:       r.Iteration,
				DefaultLabel:    label,
				DefaultAccuracy: Accuracy(def),
				Accuracy:        Accuracy(r.Result),
				DefaultOnly:     b,
				OtherOnly:       c,
				Significance:    McNemarMidP(b, c),
			})
		}
	}
	return out, nil
}

// ConfusionTable counts true (rows) against predicted (columns) labels
type ConfusionTable struct {
	Experiment string
	Iteration  int
	Counts     [][]int
}

// ConfusionTables builds one table per experiment iteration
func ConfusionTables(exps []ExperimentResults) []ConfusionTable {
	var out []ConfusionTable
	for _, e := range exps {
		for _, r := range e.Results {
			k := r.Result.ClassCount
			counts := make([][]int, k)
			for i := range counts {
				counts[i] = make([]int, k)
			}
			for _, row := range r.Result.Rows {
				counts[row.TrueLabel][row.PredLabel]++
			}
			out = append(out, ConfusionTable{Experiment: e.Descriptor.Key(), Iteration: r.Iteration, Counts: counts})
		}
	}
	return out
}
