package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"morphocv/internal/errors"
)

// Workbook sheet names
const (
	SheetMetrics   = "Metrics"
	SheetSummary   = "Summary"
	SheetDefault   = "Default"
	SheetConfusion = "Confusion"
)

// WriteWorkbook saves the report as an XLSX workbook at path
func WriteWorkbook(path string, r *Report, summary []SummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetMetrics); err != nil {
		return errors.Wrap(err, "rename default sheet")
	}
	for _, name := range []string{SheetSummary, SheetDefault, SheetConfusion} {
		if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "create sheet %s", name)
		}
	}

	if err := writeMetricsSheet(f, r); err != nil {
		return err
	}
	if err := writeSummarySheet(f, summary); err != nil {
		return err
	}
	if err := writeDefaultSheet(f, r); err != nil {
		return err
	}
	if err := writeConfusionSheet(f, r); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save workbook %s", path)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("sheet %s row %d: %w", sheet, row, err)
	}
	return nil
}

func writeMetricsSheet(f *excelize.File, r *Report) error {
	header := make([]interface{}, len(MetricsHeader))
	for i, h := range MetricsHeader {
		header[i] = h
	}
	if err := setRow(f, SheetMetrics, 1, header); err != nil {
		return err
	}
	for i, m := range r.Metrics {
		d, _ := r.Descriptor(m.Experiment)
		values := []interface{}{
			m.Experiment, m.Group, m.Iteration,
			m.Accuracy, m.MutualInformation, r.Sig(m.Significance),
			m.BaselineOnly, m.OtherOnly,
			d.InputType(), d.Resampling().String(), string(d.Classifier()),
		}
		if err := setRow(f, SheetMetrics, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, summary []SummaryRow) error {
	header := []interface{}{"group", "key", "baseline", "iterations", "mean Acc", "median Acc", "std Acc", "mean MI", "mean Sig"}
	if err := setRow(f, SheetSummary, 1, header); err != nil {
		return err
	}
	for i, s := range summary {
		values := []interface{}{
			s.Group, s.Experiment, s.Baseline, s.Iterations,
			s.MeanAccuracy, s.MedianAcc, s.StdAccuracy, s.MeanMI, s.MeanSig,
		}
		if err := setRow(f, SheetSummary, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func writeDefaultSheet(f *excelize.File, r *Report) error {
	header := []interface{}{"key", "iteration", "default label", "default Acc", "Acc", "na", "nb", "Sig"}
	if err := setRow(f, SheetDefault, 1, header); err != nil {
		return err
	}
	for i, d := range r.Default {
		values := []interface{}{
			d.Experiment, d.Iteration, r.classLabel(d.DefaultLabel),
			d.DefaultAccuracy, d.Accuracy, d.DefaultOnly, d.OtherOnly, r.Sig(d.Significance),
		}
		if err := setRow(f, SheetDefault, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

// writeConfusionSheet stacks the tables vertically, each headed by the
// experiment and iteration and separated by a blank row
func writeConfusionSheet(f *excelize.File, r *Report) error {
	row := 1
	for _, t := range r.Confusion {
		title := []interface{}{fmt.Sprintf("%s iteration %d", t.Experiment, t.Iteration)}
		for k := range t.Counts {
			title = append(title, r.classLabel(k))
		}
		if err := setRow(f, SheetConfusion, row, title); err != nil {
			return err
		}
		row++
		for k, counts := range t.Counts {
			values := []interface{}{r.classLabel(k)}
			for _, n := range counts {
				values = append(values, n)
			}
			if err := setRow(f, SheetConfusion, row, values); err != nil {
				return err
			}
			row++
		}
		row++
	}
	return nil
}
