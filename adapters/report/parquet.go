package report

import (
	"os"

	"github.com/parquet-go/parquet-go"

	"morphocv/internal/errors"
)

// MetricRow is the Parquet schema of one metric record. Significance is
// capped; SignificanceRaw keeps the tested value.
type MetricRow struct {
	RunID             string  `parquet:"run_id"`
	Group             string  `parquet:"group"`
	Experiment        string  `parquet:"experiment"`
	Baseline          string  `parquet:"baseline"`
	Iteration         int64   `parquet:"iteration"`
	Accuracy          float64 `parquet:"accuracy"`
	MutualInformation float64 `parquet:"mutual_information"`
	Significance      float64 `parquet:"significance"`
	SignificanceRaw   float64 `parquet:"significance_raw"`
	BaselineOnly      int64   `parquet:"na"`
	OtherOnly         int64   `parquet:"nb"`
	InputType         string  `parquet:"input_type,optional"`
	Resampling        string  `parquet:"resampling"`
	Classifier        string  `parquet:"classifier"`
}

// MetricRows flattens the report's records
func MetricRows(r *Report) []MetricRow {
	rows := make([]MetricRow, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		d, _ := r.Descriptor(m.Experiment)
		rows = append(rows, MetricRow{
			RunID:             r.RunID.String(),
			Group:             m.Group,
			Experiment:        m.Experiment,
			Baseline:          m.Baseline,
			Iteration:         int64(m.Iteration),
			Accuracy:          m.Accuracy,
			MutualInformation: m.MutualInformation,
			Significance:      r.Sig(m.Significance),
			SignificanceRaw:   m.Significance,
			BaselineOnly:      int64(m.BaselineOnly),
			OtherOnly:         int64(m.OtherOnly),
			InputType:         d.InputType(),
			Resampling:        d.Resampling().String(),
			Classifier:        string(d.Classifier()),
		})
	}
	return rows
}

// WriteParquet writes the metric records to path
func WriteParquet(path string, r *Report) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[MetricRow](file)
	if _, err := writer.Write(MetricRows(r)); err != nil {
		writer.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	return nil
}
