// Package hmc runs Bayesian MLP classifiers through an external Hamiltonian
// Monte Carlo sampler toolchain (net-spec, net-mc, net-pred, net-tbl).
//
// An iteration is prepared once: the permuted data table is written in the
// sampler's space separated format (integer target last) together with a
// log description that a later collection step can read. Every fold then
// runs its own command chain on its own log file, so folds can run in
// parallel.
//
// Rows produced by ClassifyFold carry the permutation's sample ids. Rows
// from the Collector carry positional ids only, because the sampler's
// output files do not record which specimen a row belongs to.
package hmc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"morphocv/adapters/resultstore"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// DataFile is the sampler data table of an iteration
const DataFile = "data.txt"

// Options configures a Classifier
type Options struct {
	BinDir      string
	HiddenUnits int
	ARDLevel    int
	Iterations  int
	Seed        uint64
	// Shell runs the generated per-fold script; defaults to "sh"
	Shell string
}

// Classifier is the HMC-MLP FoldClassifier and IterationPreparer
type Classifier struct {
	opts   Options
	priors Priors
	tools  Toolchain
	runner ports.CommandRunner
	logger *internal.Logger
}

// NewClassifier validates the sampler settings
func NewClassifier(opts Options, runner ports.CommandRunner, logger *internal.Logger) (*Classifier, error) {
	priors, err := PriorsForARD(opts.ARDLevel)
	if err != nil {
		return nil, err
	}
	if opts.HiddenUnits < 1 {
		return nil, errors.ConfigInvalidf("hmc: %d hidden units", opts.HiddenUnits)
	}
	if opts.Iterations < 4 {
		return nil, errors.ConfigInvalidf("hmc: %d iterations leave no samples after burn-in", opts.Iterations)
	}
	if opts.Shell == "" {
		opts.Shell = "sh"
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	return &Classifier{
		opts:   opts,
		priors: priors,
		tools:  Toolchain{BinDir: opts.BinDir},
		runner: runner,
		logger: logger.WithComponent("hmc"),
	}, nil
}

var (
	_ ports.FoldClassifier    = (*Classifier)(nil)
	_ ports.IterationPreparer = (*Classifier)(nil)
)

// Family returns cv.FamilyHMCMLP
func (c *Classifier) Family() cv.ClassifierFamily { return cv.FamilyHMCMLP }

// IterationDir is where one iteration's sampler files live
func IterationDir(workDir string, desc cv.ExperimentDescriptor, iteration int) string {
	return filepath.Join(workDir, fmt.Sprintf("%s_it%d_hmc", desc.Key(), iteration))
}

// BaseName prefixes every sampler file of an iteration
func BaseName(desc cv.ExperimentDescriptor, iteration int) string {
	return fmt.Sprintf("%s_it%d", desc.Key(), iteration)
}

// LogInfoFile names the log description of an iteration
func LogInfoFile(desc cv.ExperimentDescriptor, iteration int) string {
	return BaseName(desc, iteration) + "_resparse.txt"
}

// PrepareIteration writes the data table and the log description
func (c *Classifier) PrepareIteration(_ context.Context, task ports.IterationTask) error {
	dir := IterationDir(task.WorkDir, task.Experiment, task.Iteration)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.DataIntegrityf("hmc: create %s: %v", dir, err)
	}
	if err := WriteData(filepath.Join(dir, DataFile), task.Data); err != nil {
		return err
	}

	base := BaseName(task.Experiment, task.Iteration)
	target, meanCols := TargetFor(task.ClassCount)
	info := LogInfo{
		ResultDir:  dir,
		PredSuffix: DefaultPredSuffix,
		ARDSuffix:  DefaultARDSuffix,
		LogDir:     dir,
		BurnIn:     BurnIn(c.opts.Iterations),
		Target:     target,
		MeanCols:   meanCols,
	}
	for _, f := range task.Folds {
		info.LogFiles = append(info.LogFiles, NewFoldFiles(base, DataFile, f.Index).Log)
	}
	path := filepath.Join(dir, LogInfoFile(task.Experiment, task.Iteration))
	f, err := os.Create(path)
	if err != nil {
		return errors.DataIntegrityf("hmc: create %s: %v", path, err)
	}
	if err := WriteLogInfo(f, info); err != nil {
		f.Close()
		return errors.DataIntegrityf("hmc: write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.DataIntegrityf("hmc: close %s: %v", path, err)
	}
	c.logger.Info("prepared %s iteration %d: %d rows, %d folds, target %s", task.Experiment.Key(), task.Iteration, task.Data.Len(), len(task.Folds), target)
	return nil
}

// ClassifyFold runs the sampler chain for one fold and parses its outputs
func (c *Classifier) ClassifyFold(ctx context.Context, task ports.FoldTask) (*ports.FoldOutcome, error) {
	if task.ClassCount < 2 {
		return nil, errors.ConfigInvalidf("hmc: class count %d is below 2", task.ClassCount)
	}
	dir := IterationDir(task.WorkDir, task.Experiment, task.Iteration)
	if _, err := os.Stat(filepath.Join(dir, DataFile)); err != nil {
		return nil, errors.DataIntegrityf("hmc: iteration %d was not prepared: %v", task.Iteration, err)
	}
	files := NewFoldFiles(BaseName(task.Experiment, task.Iteration), DataFile, task.Fold.Index)
	model := Model{
		Inputs:     task.Data.Width(),
		Hidden:     c.opts.HiddenUnits,
		ClassCount: task.ClassCount,
		Priors:     c.priors,
		Iterations: c.opts.Iterations,
		Seed:       FoldSeed(c.opts.Seed, task.Iteration, task.Fold.Index),
	}
	where := fmt.Sprintf("%s iteration %d fold %d", task.Experiment.Key(), task.Iteration, task.Fold.Index)

	for _, cmd := range c.tools.SetupCommands(model, files, task.Fold, task.Data.Len()) {
		cmd.Dir = dir
		if _, err := c.runner.Run(ctx, cmd); err != nil {
			return nil, errors.Wrapf(err, "hmc: %s", where)
		}
	}

	script := filepath.Join(dir, files.Script)
	if err := os.WriteFile(script, []byte(c.tools.RunScript(model, files)), 0o755); err != nil {
		return nil, errors.DataIntegrityf("hmc: write %s: %v", script, err)
	}
	c.logger.Debug("%s: sampling %d iterations", where, model.Iterations)
	if _, err := c.runner.Run(ctx, ports.Command{Path: c.opts.Shell, Args: []string{files.Script}, Dir: dir}); err != nil {
		return nil, errors.Wrapf(err, "hmc: %s", where)
	}

	rows, err := c.readPredictions(filepath.Join(dir, files.Preds), task)
	if err != nil {
		return nil, errors.Wrapf(err, "hmc: %s", where)
	}
	rel, err := readARD(filepath.Join(dir, files.ARD), BurnIn(model.Iterations), task.Data.Width())
	if err != nil {
		return nil, errors.Wrapf(err, "hmc: %s", where)
	}
	for _, name := range []string{files.Preds, files.ARD} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			c.logger.Warn("could not remove %s: %v", name, err)
		}
	}
	return &ports.FoldOutcome{Fold: task.Fold, Rows: rows, Relevance: rel}, nil
}

// readPredictions checks the sampler's rows against the fold's test rows
// and attaches the sample ids
func (c *Classifier) readPredictions(path string, task ports.FoldTask) ([]cv.ResultRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataIntegrityf("predictions: %v", err)
	}
	defer f.Close()
	preds, err := ParsePredictions(f)
	if err != nil {
		return nil, err
	}
	test := task.Test()
	if len(preds) != test.Len() {
		return nil, errors.DataIntegrityf("%s has %d predictions for %d test rows", path, len(preds), test.Len())
	}
	target, _ := TargetFor(task.ClassCount)
	rows, degenerate, err := ToRows(preds, target, task.ClassCount)
	if err != nil {
		return nil, err
	}
	if degenerate > 0 {
		c.logger.Warn("%s: %d rows without probability mass replaced by uniform ties", errors.CodeNumericDegeneracy, degenerate)
	}
	for i := range rows {
		if rows[i].TrueLabel != test.Labels[i] {
			return nil, errors.DataIntegrityf("%s row %d: sampler target %d, expected label %d", path, i, rows[i].TrueLabel, test.Labels[i])
		}
		rows[i].SampleID = test.SampleIDs[i]
	}
	return rows, nil
}

func readARD(path string, burnIn, width int) (*cv.RelevanceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataIntegrityf("ARD table: %v", err)
	}
	defer f.Close()
	var samples ARDSamples
	if err := samples.Add(f, burnIn); err != nil {
		return nil, err
	}
	rel, err := samples.Relevance()
	if err != nil {
		return nil, err
	}
	if got := len(rel.Columns) / 3; got != width {
		return nil, errors.DataIntegrityf("ARD table has %d inputs, expected %d", got, width)
	}
	return rel, nil
}

// WriteData writes the sampler data table: space separated features, then
// the integer class label
func WriteData(path string, data *cv.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.DataIntegrityf("hmc: create %s: %v", path, err)
	}
	w := bufio.NewWriter(f)
	for i, row := range data.Features {
		for _, v := range row {
			w.WriteString(resultstore.FormatFloat(v))
			w.WriteByte(' ')
		}
		w.WriteString(strconv.Itoa(data.Labels[i]))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.DataIntegrityf("hmc: write %s: %v", path, err)
	}
	return f.Close()
}
