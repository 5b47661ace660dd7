// Package report writes comparison reports: a metrics table, per-experiment
// summaries, an XLSX workbook, a Parquet export and a Markdown/HTML summary.
// Significance values are capped here for display and storage; the metric
// records themselves keep the raw p-values.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"

	"morphocv/adapters/resultstore"
	"morphocv/domain/core"
	"morphocv/domain/cv"
	"morphocv/internal/errors"
	"morphocv/internal/metrics"
)

// Report is everything one comparison run produced
type Report struct {
	RunID           core.RunID
	CreatedAt       time.Time
	MaxSignificance float64
	Experiments     []cv.ExperimentDescriptor
	Metrics         []cv.MetricRecord
	Default         []metrics.DefaultComparison
	Confusion       []metrics.ConfusionTable
	ClassLabels     []string
}

// Groups returns the comparison groups in first-seen order
func (r *Report) Groups() []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range r.Metrics {
		if !seen[m.Group] {
			seen[m.Group] = true
			out = append(out, m.Group)
		}
	}
	return out
}

// Descriptor looks up an experiment of the report by key
func (r *Report) Descriptor(key string) (cv.ExperimentDescriptor, bool) {
	for _, d := range r.Experiments {
		if d.Key() == key {
			return d, true
		}
	}
	return cv.ExperimentDescriptor{}, false
}

// Sig caps p for display
func (r *Report) Sig(p float64) float64 {
	return metrics.CapSignificance(p, r.capLimit())
}

// SummaryRow condenses the iterations of one experiment within a group
type SummaryRow struct {
	Group        string  `json:"group"`
	Experiment   string  `json:"experiment"`
	Baseline     bool    `json:"baseline"`
	Iterations   int     `json:"iterations"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	MedianAcc    float64 `json:"median_accuracy"`
	StdAccuracy  float64 `json:"std_accuracy"`
	MeanMI       float64 `json:"mean_mi"`
	MeanSig      float64 `json:"mean_sig"`
}

// Summarize computes one row per (group, experiment) in record order.
// Standard deviations are population deviations over iterations.
func Summarize(r *Report) ([]SummaryRow, error) {
	type key struct{ group, exp string }
	var order []key
	acc := map[key][]float64{}
	mi := map[key][]float64{}
	sig := map[key][]float64{}
	base := map[key]bool{}
	for _, m := range r.Metrics {
		k := key{m.Group, m.Experiment}
		if _, ok := acc[k]; !ok {
			order = append(order, k)
		}
		acc[k] = append(acc[k], m.Accuracy)
		mi[k] = append(mi[k], m.MutualInformation)
		sig[k] = append(sig[k], r.Sig(m.Significance))
		base[k] = m.IsBaseline()
	}

	rows := make([]SummaryRow, 0, len(order))
	for _, k := range order {
		row := SummaryRow{Group: k.group, Experiment: k.exp, Baseline: base[k], Iterations: len(acc[k])}
		var err error
		if row.MeanAccuracy, err = stats.Mean(acc[k]); err != nil {
			return nil, errors.Wrapf(err, "summarize %s", k.exp)
		}
		if row.MedianAcc, err = stats.Median(acc[k]); err != nil {
			return nil, errors.Wrapf(err, "summarize %s", k.exp)
		}
		if row.StdAccuracy, err = stats.StandardDeviation(acc[k]); err != nil {
			return nil, errors.Wrapf(err, "summarize %s", k.exp)
		}
		if row.MeanMI, err = stats.Mean(mi[k]); err != nil {
			return nil, errors.Wrapf(err, "summarize %s", k.exp)
		}
		if row.MeanSig, err = stats.Mean(sig[k]); err != nil {
			return nil, errors.Wrapf(err, "summarize %s", k.exp)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// MetricsHeader is the column layout of the metrics table
var MetricsHeader = []string{"key", "group", "iteration", "Acc", "MI", "Sig", "na", "nb", "inputtype", "resampling", "classifier"}

// WriteMetricsCSV writes one line per metric record with capped Sig
func WriteMetricsCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MetricsHeader); err != nil {
		return err
	}
	for _, m := range r.Metrics {
		d, _ := r.Descriptor(m.Experiment)
		rec := []string{
			m.Experiment,
			m.Group,
			strconv.Itoa(m.Iteration),
			resultstore.FormatFloat(m.Accuracy),
			resultstore.FormatFloat(m.MutualInformation),
			resultstore.FormatFloat(r.Sig(m.Significance)),
			strconv.Itoa(m.BaselineOnly),
			strconv.Itoa(m.OtherOnly),
			d.InputType(),
			d.Resampling().String(),
			string(d.Classifier()),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// classLabel names class k, falling back to its index
func (r *Report) classLabel(k int) string {
	if k < len(r.ClassLabels) && r.ClassLabels[k] != "" {
		return r.ClassLabels[k]
	}
	return strconv.Itoa(k)
}
