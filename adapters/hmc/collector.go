package hmc

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
)

// Collector gathers the per-fold outputs of an externally run simulation
// described by a LogInfo. Files are ordered by the fold index in their
// name and deleted once every file has been read. Missing or duplicate
// folds fail the collection before anything is deleted.
//
// Collected prediction rows carry positional sample ids (row order of the
// concatenated folds), not the ids of the resampled specimens.
type Collector struct {
	logger *internal.Logger
}

// NewCollector creates a collector
func NewCollector(logger *internal.Logger) *Collector {
	return &Collector{logger: logger.WithComponent("hmc-collect")}
}

// foldFile is a result file and the fold index parsed from its name
type foldFile struct {
	path string
	fold int
}

var foldIndexPattern = regexp.MustCompile(`_(\d+)$`)

// ListFoldOutputs lists the files in dir ending in suffix, sorted by the fold
// index that precedes the suffix
func ListFoldOutputs(dir, suffix string) ([]string, error) {
	files, err := listFoldFiles(dir, suffix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

func listFoldFiles(dir, suffix string) ([]foldFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.DataIntegrityf("list %s: %v", dir, err)
	}
	var files []foldFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		m := foldIndexPattern.FindStringSubmatch(strings.TrimSuffix(name, suffix))
		if m == nil {
			return nil, errors.DataIntegrityf("%s: no fold index before %s", name, suffix)
		}
		fold, _ := strconv.Atoi(m[1])
		files = append(files, foldFile{path: filepath.Join(dir, name), fold: fold})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].fold != files[j].fold {
			return files[i].fold < files[j].fold
		}
		return files[i].path < files[j].path
	})
	return files, nil
}

// foldOutputs lists the fold files of info with the given suffix. Every fold
// index must appear once. When the description names its log files, the
// folds must be exactly 0..len(LogFiles)-1.
func foldOutputs(info LogInfo, suffix string) ([]string, error) {
	files, err := listFoldFiles(info.ResultDir, suffix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.DataIntegrityf("no *%s files in %s", suffix, info.ResultDir)
	}
	for i := 1; i < len(files); i++ {
		if files[i].fold == files[i-1].fold {
			return nil, errors.DataIntegrityf("fold %d has two *%s files: %s and %s",
				files[i].fold, suffix, filepath.Base(files[i-1].path), filepath.Base(files[i].path))
		}
	}
	if want := len(info.LogFiles); want > 0 {
		if len(files) != want {
			return nil, errors.DataIntegrityf("%d *%s files in %s, the log description declares %d folds",
				len(files), suffix, info.ResultDir, want)
		}
		for i, f := range files {
			if f.fold != i {
				return nil, errors.DataIntegrityf("fold %d output missing in %s (found fold %d)", i, info.ResultDir, f.fold)
			}
		}
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// CollectPredictions concatenates the fold predictions in fold order.
//
// The sampler output carries no specimen ids, so SampleID of each row is
// its position in the concatenation, not a permutation sample id. Do not
// join these rows against specimen tables by id.
func (c *Collector) CollectPredictions(info LogInfo) (*cv.CanonicalResult, error) {
	paths, err := foldOutputs(info, info.PredSuffix)
	if err != nil {
		return nil, err
	}
	classCount := info.MeanCols
	if info.Target == TargetBinary {
		classCount = 2
	}
	result := &cv.CanonicalResult{ClassCount: classCount}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.DataIntegrityf("open %s: %v", path, err)
		}
		preds, err := ParsePredictions(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
		rows, degenerate, err := ToRows(preds, info.Target, classCount)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
		if degenerate > 0 {
			c.logger.Warn("%s: %s has %d rows without probability mass", errors.CodeNumericDegeneracy, path, degenerate)
		}
		for _, row := range rows {
			// positional, see CollectPredictions
			row.SampleID = cv.SampleIndex(len(result.Rows))
			result.Rows = append(result.Rows, row)
		}
		c.logger.Debug("collected %d predictions from %s", len(rows), path)
	}
	c.remove(paths)
	return result, nil
}

// CollectARD averages the post burn-in ARD samples of every fold file
func (c *Collector) CollectARD(info LogInfo) (*cv.RelevanceTable, error) {
	paths, err := foldOutputs(info, info.ARDSuffix)
	if err != nil {
		return nil, err
	}
	var samples ARDSamples
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.DataIntegrityf("open %s: %v", path, err)
		}
		err = samples.Add(f, info.BurnIn)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
	}
	rel, err := samples.Relevance()
	if err != nil {
		return nil, err
	}
	c.logger.Info("collected %d ARD samples from %d files", samples.Count(), len(paths))
	c.remove(paths)
	return rel, nil
}

func (c *Collector) remove(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			c.logger.Warn("could not remove %s: %v", p, err)
		}
	}
}
