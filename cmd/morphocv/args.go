package main

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"morphocv/domain/cv"
	"morphocv/internal/config"
	"morphocv/internal/errors"
	"morphocv/internal/resample"
)

// parseIterations parses an iteration list such as "0-9", "3" or
// "0,2,5-7". Ranges are inclusive; duplicates are removed and the result
// is sorted.
func parseIterations(s string) ([]int, error) {
	seen := make(map[int]bool)
	var ids []int
	add := func(v int) {
		if !seen[v] {
			seen[v] = true
			ids = append(ids, v)
		}
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil || first < 0 {
			return nil, errors.ConfigInvalidf("iterations %q: bad value %q", s, lo)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil || last < first {
				return nil, errors.ConfigInvalidf("iterations %q: bad range %q", s, part)
			}
		}
		for v := first; v <= last; v++ {
			add(v)
		}
	}
	if len(ids) == 0 {
		return nil, errors.ConfigInvalidf("iterations %q: empty", s)
	}
	sort.Ints(ids)
	return ids, nil
}

func parsePositive(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, errors.ConfigInvalidf("%s %q: expected a positive integer", name, s)
	}
	return v, nil
}

// lookupExperiment loads the catalog and returns the experiment named key
func lookupExperiment(cfg *config.Config, key string) (*config.Experiments, cv.ExperimentDescriptor, error) {
	exps, err := config.LoadExperiments(cfg.Paths.ExperimentsFile)
	if err != nil {
		return nil, cv.ExperimentDescriptor{}, err
	}
	desc, ok := exps.Catalog.Lookup(key)
	if !ok {
		return nil, cv.ExperimentDescriptor{}, errors.ConfigInvalidf("experiment %q is not in %s", key, cfg.Paths.ExperimentsFile)
	}
	return exps, desc, nil
}

// indexFile is the shared resample index for kind
func indexFile(cfg *config.Config, kind cv.ResampleKind) (string, error) {
	var path, key string
	switch kind {
	case cv.Bootstrap:
		path, key = cfg.Paths.BootstrapIndexFile, "BOOTSTRAP_INDEX_FILE"
	default:
		path, key = cfg.Paths.ReshuffleIndexFile, "RESHUFFLE_INDEX_FILE"
	}
	if path == "" {
		return "", errors.ConfigInvalidf("%s is not set", key)
	}
	return path, nil
}

func loadPermutations(cfg *config.Config, kind cv.ResampleKind) ([]cv.Permutation, error) {
	path, err := indexFile(cfg, kind)
	if err != nil {
		return nil, err
	}
	return resample.ReadIndexFile(path, kind)
}

// writeFileAtomic writes to a temp file beside path and renames it
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
