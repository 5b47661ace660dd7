package hmc

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// Prediction is one numeric line of net-pred output
type Prediction struct {
	Case   int
	Target int
	Means  []float64
}

// ParsePredictions reads net-pred "tn" output. Only lines made entirely of
// numbers with more than two values are data. The first such line fixes the
// layout: with more than four values the means are every column between the
// target and the trailing error column, otherwise the single third column.
func ParsePredictions(r io.Reader) ([]Prediction, error) {
	var out []Prediction
	lo, hi := -1, -1
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		vals, ok := numericFields(scanner.Text())
		if !ok || len(vals) <= 2 {
			continue
		}
		if lo < 0 {
			lo, hi = 2, 3
			if len(vals) > 4 {
				hi = len(vals) - 1
			}
		}
		if len(vals) < hi {
			return nil, errors.DataIntegrityf("prediction line %d has %d values, expected at least %d", line, len(vals), hi)
		}
		target := vals[1]
		if target != math.Trunc(target) || target < 0 {
			return nil, errors.DataIntegrityf("prediction line %d: target %v is not a class index", line, target)
		}
		out = append(out, Prediction{
			Case:   int(vals[0]),
			Target: int(target),
			Means:  append([]float64(nil), vals[lo:hi]...),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.DataIntegrityf("read predictions: %v", err)
	}
	return out, nil
}

// ToRows converts parsed predictions into canonical rows. Binary targets
// carry P(class=1); multiclass targets carry one mean probability per class.
func ToRows(preds []Prediction, target TargetKind, classCount int) ([]cv.ResultRow, int, error) {
	rows := make([]cv.ResultRow, len(preds))
	degenerate := 0
	for i, p := range preds {
		if p.Target >= classCount {
			return nil, 0, errors.DataIntegrityf("case %d: target %d outside %d classes", p.Case, p.Target, classCount)
		}
		var probs []float64
		var pred int
		switch target {
		case TargetBinary:
			if len(p.Means) != 1 {
				return nil, 0, errors.DataIntegrityf("case %d: %d means for a binary target", p.Case, len(p.Means))
			}
			q := p.Means[0]
			if q < 0 || q > 1 || math.IsNaN(q) {
				return nil, 0, errors.DataIntegrityf("case %d: probability %v", p.Case, q)
			}
			probs = []float64{1 - q, q}
			if q > 0.5 {
				pred = 1
			}
		case TargetClass:
			if len(p.Means) != classCount {
				return nil, 0, errors.DataIntegrityf("case %d: %d means for %d classes", p.Case, len(p.Means), classCount)
			}
			probs = append([]float64(nil), p.Means...)
			for _, q := range probs {
				if q < 0 || math.IsNaN(q) {
					return nil, 0, errors.DataIntegrityf("case %d: probability %v", p.Case, q)
				}
			}
			// net-pred prints rounded means; renormalize
			if cv.NormalizeProbabilities(probs) {
				degenerate++
			}
			pred = cv.ArgMax(probs)
		default:
			return nil, 0, errors.ConfigInvalidf("unsupported target type %q", target)
		}
		rows[i] = cv.ResultRow{SampleID: cv.SampleIndex(i), TrueLabel: p.Target, PredLabel: pred, Probs: probs}
	}
	return rows, degenerate, nil
}

// ARDSamples accumulates net-tbl ARD rows after burn-in
type ARDSamples struct {
	sum   []float64
	count int
}

// Add reads one net-tbl output. Rows are counted from the start of the file
// and the first burnIn of them are skipped. The first column of every row
// is the iteration counter and is dropped.
func (a *ARDSamples) Add(r io.Reader, burnIn int) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	row := 0
	for scanner.Scan() {
		vals, ok := numericFields(scanner.Text())
		if !ok || len(vals) == 0 {
			continue
		}
		row++
		if row <= burnIn {
			continue
		}
		vals = vals[1:]
		if a.sum == nil {
			a.sum = make([]float64, len(vals))
		}
		if len(vals) != len(a.sum) {
			return errors.DataIntegrityf("ARD row %d has %d widths, expected %d", row, len(vals), len(a.sum))
		}
		floats.Add(a.sum, vals)
		a.count++
	}
	if err := scanner.Err(); err != nil {
		return errors.DataIntegrityf("read ARD table: %v", err)
	}
	return nil
}

// Count returns the number of accumulated samples
func (a *ARDSamples) Count() int { return a.count }

// Relevance averages the samples and splits them into input-to-hidden (h)
// and input-to-output (o) widths. The combined relevance is sqrt(h²+o²).
// The row is laid out as cv.HMCRelevanceColumns: combined, h, o.
func (a *ARDSamples) Relevance() (*cv.RelevanceTable, error) {
	if a.count == 0 {
		return nil, errors.DataIntegrity("no ARD samples after burn-in")
	}
	if len(a.sum)%2 != 0 {
		return nil, errors.DataIntegrityf("ARD rows have %d widths; expected two blocks of equal size", len(a.sum))
	}
	mean := make([]float64, len(a.sum))
	for i, v := range a.sum {
		mean[i] = v / float64(a.count)
	}
	n := len(mean) / 2
	hidden, output := mean[:n], mean[n:]
	row := make([]float64, 0, 3*n)
	for i := 0; i < n; i++ {
		row = append(row, math.Hypot(hidden[i], output[i]))
	}
	row = append(row, hidden...)
	row = append(row, output...)
	return &cv.RelevanceTable{Columns: cv.HMCRelevanceColumns(n), Rows: [][]float64{row}}, nil
}

// numericFields parses every whitespace separated field of line as a float
func numericFields(line string) ([]float64, bool) {
	fields := strings.Fields(line)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}
