// Package gpc drives an external Gaussian process classification tool in a
// one-vs-rest scheme.
//
// For every fold and class the adapter writes a training CSV (features and a
// 0/1 target as the last column) and a test CSV (features only), then runs
//
//	<executable> <train.csv> <test.csv> <out>
//
// The tool writes three files next to <out>:
//
//	<out>_pred.csv    one probability per test row
//	<out>_ls.csv      one RBF length-scale per feature on a single line
//	<out>_status.txt  the optimizer status line
package gpc

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"morphocv/adapters/resultstore"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// StatusAbnormalLineSearch is the optimizer status that triggers a retry
const StatusAbnormalLineSearch = "ABNORMAL_TERMINATION_IN_LNSRCH"

// DefaultMaxRetries bounds the runs per class when MaxRetries is unset
const DefaultMaxRetries = 5

// Output file suffixes written by the tool
const (
	SuffixPred   = "_pred.csv"
	SuffixLength = "_ls.csv"
	SuffixStatus = "_status.txt"
)

// Classifier is the GPC FoldClassifier
type Classifier struct {
	executable string
	maxRetries int
	keepFiles  bool
	runner     ports.CommandRunner
	logger     *internal.Logger
}

// Options configures a Classifier
type Options struct {
	Executable string
	MaxRetries int
	// KeepWorkFiles leaves the per-fold CSVs in place after a successful fold
	KeepWorkFiles bool
}

// NewClassifier creates the GPC adapter
func NewClassifier(opts Options, runner ports.CommandRunner, logger *internal.Logger) *Classifier {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Classifier{
		executable: opts.Executable,
		maxRetries: opts.MaxRetries,
		keepFiles:  opts.KeepWorkFiles,
		runner:     runner,
		logger:     logger.WithComponent("gpc"),
	}
}

var _ ports.FoldClassifier = (*Classifier)(nil)

// Family returns cv.FamilyGPC
func (c *Classifier) Family() cv.ClassifierFamily { return cv.FamilyGPC }

// ClassifyFold trains one binary classifier per class on the fold's training
// rows and combines their test probabilities into normalized class rows
func (c *Classifier) ClassifyFold(ctx context.Context, task ports.FoldTask) (*ports.FoldOutcome, error) {
	if task.ClassCount < 2 {
		return nil, errors.ConfigInvalidf("gpc: class count %d is below 2", task.ClassCount)
	}
	train, test := task.Train(), task.Test()
	if test.Len() == 0 {
		return nil, errors.DataIntegrityf("gpc: %s iteration %d fold %d has no test rows", task.Experiment.Key(), task.Iteration, task.Fold.Index)
	}

	dir := filepath.Join(task.WorkDir, fmt.Sprintf("%s_it%d_fold%d_gpc", task.Experiment.Key(), task.Iteration, task.Fold.Index))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.DataIntegrityf("gpc: create work directory %s: %v", dir, err)
	}
	testPath := filepath.Join(dir, "test.csv")
	if err := writeFeatures(testPath, test, nil); err != nil {
		return nil, err
	}

	c.logger.Debug("%s iteration %d fold %d: %d train, %d test rows", task.Experiment.Key(), task.Iteration, task.Fold.Index, train.Len(), test.Len())

	probs := make([][]float64, test.Len())
	for i := range probs {
		probs[i] = make([]float64, task.ClassCount)
	}
	classRel := &cv.RelevanceTable{Columns: cv.ARDColumns(train.Width())}

	for k := 0; k < task.ClassCount; k++ {
		target := make([]int, train.Len())
		for i, l := range train.Labels {
			if l == k {
				target[i] = 1
			}
		}
		trainPath := filepath.Join(dir, fmt.Sprintf("train_class%d.csv", k))
		if err := writeFeatures(trainPath, train, target); err != nil {
			return nil, err
		}
		out := filepath.Join(dir, fmt.Sprintf("class%d", k))
		classProbs, lengths, err := c.fitClass(ctx, task, k, trainPath, testPath, out, test.Len(), train.Width())
		if err != nil {
			return nil, err
		}
		for i, p := range classProbs {
			probs[i][k] = p
		}
		rel, err := InverseLengthScales(lengths)
		if err != nil {
			return nil, errors.Wrapf(err, "gpc: %s iteration %d fold %d class %d", task.Experiment.Key(), task.Iteration, task.Fold.Index, k)
		}
		classRel.Rows = append(classRel.Rows, rel)
	}

	rows := make([]cv.ResultRow, test.Len())
	for i := range rows {
		if cv.NormalizeProbabilities(probs[i]) {
			c.logger.Warn("%s: %s iteration %d fold %d sample %d has zero total probability, using a uniform tie",
				errors.CodeNumericDegeneracy, task.Experiment.Key(), task.Iteration, task.Fold.Index, test.SampleIDs[i])
		}
		rows[i] = cv.ResultRow{
			SampleID:  test.SampleIDs[i],
			TrueLabel: test.Labels[i],
			PredLabel: cv.ArgMax(probs[i]),
			Probs:     probs[i],
		}
	}

	foldRel := make([]float64, classRel.Width())
	for _, row := range classRel.Rows {
		floats.Add(foldRel, row)
	}
	floats.Scale(1/float64(len(classRel.Rows)), foldRel)

	if !c.keepFiles {
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Warn("could not remove %s: %v", dir, err)
		}
	}
	return &ports.FoldOutcome{
		Fold:           task.Fold,
		Rows:           rows,
		Relevance:      &cv.RelevanceTable{Columns: classRel.Columns, Rows: [][]float64{foldRel}},
		ClassRelevance: classRel,
	}, nil
}

// fitClass runs the tool until the optimizer ends normally or the retry
// budget is spent
func (c *Classifier) fitClass(ctx context.Context, task ports.FoldTask, class int, trainPath, testPath, out string, nTest, width int) ([]float64, []float64, error) {
	cmd := ports.Command{Path: c.executable, Args: []string{trainPath, testPath, out}, Dir: filepath.Dir(out)}
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if _, err := c.runner.Run(ctx, cmd); err != nil {
			return nil, nil, errors.Wrapf(err, "gpc: %s iteration %d fold %d class %d", task.Experiment.Key(), task.Iteration, task.Fold.Index, class)
		}
		status, err := readStatus(out + SuffixStatus)
		if err != nil {
			return nil, nil, err
		}
		if strings.Contains(status, StatusAbnormalLineSearch) {
			c.logger.Warn("%s iteration %d fold %d class %d: optimizer status %s (attempt %d/%d)",
				task.Experiment.Key(), task.Iteration, task.Fold.Index, class, StatusAbnormalLineSearch, attempt, c.maxRetries)
			continue
		}
		probs, err := ReadColumn(out + SuffixPred)
		if err != nil {
			return nil, nil, err
		}
		if len(probs) != nTest {
			return nil, nil, errors.DataIntegrityf("gpc: %s has %d predictions for %d test rows", out+SuffixPred, len(probs), nTest)
		}
		lengths, err := ReadRow(out + SuffixLength)
		if err != nil {
			return nil, nil, err
		}
		if len(lengths) != width {
			return nil, nil, errors.DataIntegrityf("gpc: %s has %d length-scales for %d features", out+SuffixLength, len(lengths), width)
		}
		return probs, lengths, nil
	}
	return nil, nil, errors.ExternalProcessError(c.executable, fmt.Errorf(
		"%s iteration %d fold %d class %d: optimizer still reports %s after %d attempts",
		task.Experiment.Key(), task.Iteration, task.Fold.Index, class, StatusAbnormalLineSearch, c.maxRetries))
}

// InverseLengthScales converts ARD length-scales into relevance scores
func InverseLengthScales(lengths []float64) ([]float64, error) {
	out := make([]float64, len(lengths))
	for i, l := range lengths {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, errors.DataIntegrityf("length-scale %d is %v", i, l)
		}
		out[i] = 1 / l
	}
	return out, nil
}

// writeFeatures writes one CSV row per sample. target, when set, is appended
// as the last column.
func writeFeatures(path string, data *cv.Dataset, target []int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.DataIntegrityf("gpc: create %s: %v", path, err)
	}
	w := csv.NewWriter(f)
	width := data.Width()
	if target != nil {
		width++
	}
	record := make([]string, width)
	for i, row := range data.Features {
		for j, v := range row {
			record[j] = resultstore.FormatFloat(v)
		}
		if target != nil {
			record[width-1] = strconv.Itoa(target[i])
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return errors.DataIntegrityf("gpc: write %s: %v", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.DataIntegrityf("gpc: write %s: %v", path, err)
	}
	return f.Close()
}

func readStatus(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.DataIntegrityf("gpc: optimizer status %s: %v", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ReadColumn reads one float per non-empty line
func ReadColumn(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataIntegrityf("gpc: %v", err)
	}
	defer f.Close()

	var out []float64
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || v < 0 {
			return nil, errors.DataIntegrityf("gpc: %s line %d: invalid probability %q", path, line, text)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.DataIntegrityf("gpc: read %s: %v", path, err)
	}
	return out, nil
}

// ReadRow reads a single comma or whitespace separated row of floats
func ReadRow(path string) ([]float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.DataIntegrityf("gpc: %v", err)
	}
	fields := strings.FieldsFunc(string(b), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]float64, len(fields))
	for i, s := range fields {
		if out[i], err = strconv.ParseFloat(s, 64); err != nil {
			return nil, errors.DataIntegrityf("gpc: %s field %d: %v", path, i, err)
		}
	}
	return out, nil
}
