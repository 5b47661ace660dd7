// Package resultstore persists canonical prediction and relevance tables as
// CSV files under one root directory.
package resultstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// Column names of the canonical prediction schema
const (
	ColTrueTarget = "ttarg"
	ColPredTarget = "ptarg"
	ColProbPrefix = "probs"
	ColSampleID   = "sample_id"
)

// FileStore is a ResultStore over a directory. With consume enabled every
// successful read marks its file, and CommitReads deletes the marked files.
type FileStore struct {
	root    string
	consume bool
	logger  *internal.Logger

	mu      sync.Mutex
	pending []string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string, consume bool, logger *internal.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.ConfigInvalidf("create result directory %s: %v", root, err)
	}
	return &FileStore{root: root, consume: consume, logger: logger.WithComponent("resultstore")}, nil
}

var (
	_ ports.ResultStore   = (*FileStore)(nil)
	_ ports.ReadCommitter = (*FileStore)(nil)
)

// Root returns the store directory
func (s *FileStore) Root() string { return s.root }

// Path returns the absolute location of name
func (s *FileStore) Path(name string) string { return filepath.Join(s.root, name) }

// Exists reports whether name is present
func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// WritePredictions stores result as ttarg,ptarg,probs0..probsK-1,sample_id
func (s *FileStore) WritePredictions(name string, result *cv.CanonicalResult) error {
	return s.writeAtomic(name, func(w io.Writer) error {
		return EncodePredictions(w, result)
	})
}

// ReadPredictions loads a canonical prediction table
func (s *FileStore) ReadPredictions(name string) (*cv.CanonicalResult, error) {
	var result *cv.CanonicalResult
	err := s.read(name, func(r io.Reader) error {
		var err error
		result, err = DecodePredictions(r)
		return err
	})
	return result, err
}

// WriteRelevance stores table with its column header
func (s *FileStore) WriteRelevance(name string, table *cv.RelevanceTable) error {
	return s.writeAtomic(name, func(w io.Writer) error {
		return EncodeRelevance(w, table)
	})
}

// ReadRelevance loads a relevance table
func (s *FileStore) ReadRelevance(name string) (*cv.RelevanceTable, error) {
	var table *cv.RelevanceTable
	err := s.read(name, func(r io.Reader) error {
		var err error
		table, err = DecodeRelevance(r)
		return err
	})
	return table, err
}

func (s *FileStore) read(name string, decode func(io.Reader) error) error {
	path := s.Path(name)
	f, err := os.Open(path)
	if err != nil {
		return errors.DataIntegrityf("result file %s: %v", path, err)
	}
	err = decode(f)
	f.Close()
	if err != nil {
		return errors.Wrapf(err, "result file %s", path)
	}
	if s.consume {
		s.mu.Lock()
		s.pending = append(s.pending, path)
		s.mu.Unlock()
	}
	return nil
}

// CommitReads deletes the files read since the last commit. It is a no-op
// unless consume is enabled.
func (s *FileStore) CommitReads() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var failed []string
	for _, path := range pending {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not consume %s: %v", path, err)
			failed = append(failed, path)
		}
	}
	if len(failed) > 0 {
		return errors.DataIntegrityf("could not consume %d result files: %s", len(failed), strings.Join(failed, ", "))
	}
	if len(pending) > 0 {
		s.logger.Debug("consumed %d result files", len(pending))
	}
	return nil
}

// ForgetReads keeps the files read since the last commit
func (s *FileStore) ForgetReads() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// writeAtomic writes to a temporary sibling and renames it into place, so a
// failed write never leaves a partial file under name
func (s *FileStore) writeAtomic(name string, encode func(io.Writer) error) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.DataIntegrityf("create directory for %s: %v", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.DataIntegrityf("create temp file for %s: %v", path, err)
	}
	tmpName := tmp.Name()
	if err := encode(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.DataIntegrityf("close %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.DataIntegrityf("rename into %s: %v", path, err)
	}
	s.logger.Debug("wrote %s", path)
	return nil
}

// FormatFloat renders v in its shortest exact form so equal inputs always
// give equal bytes
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// EncodePredictions writes the canonical prediction CSV
func EncodePredictions(w io.Writer, result *cv.CanonicalResult) error {
	cw := csv.NewWriter(w)
	header := []string{ColTrueTarget, ColPredTarget}
	for k := 0; k < result.ClassCount; k++ {
		header = append(header, fmt.Sprintf("%s%d", ColProbPrefix, k))
	}
	header = append(header, ColSampleID)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range result.Rows {
		if len(row.Probs) != result.ClassCount {
			return errors.DataIntegrityf("row %d has %d probabilities for %d classes", i, len(row.Probs), result.ClassCount)
		}
		record[0] = strconv.Itoa(row.TrueLabel)
		record[1] = strconv.Itoa(row.PredLabel)
		for k, p := range row.Probs {
			record[2+k] = FormatFloat(p)
		}
		record[len(record)-1] = strconv.Itoa(int(row.SampleID))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodePredictions reads a canonical prediction CSV. Columns are located by
// name; a single "probs" column is P(class=1) of a binary classifier and is
// expanded to [1-p, p]. Without a sample_id column ids are row positions.
func DecodePredictions(r io.Reader) (*cv.CanonicalResult, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	header := records[0]
	ttarg, ptarg, sid := -1, -1, -1
	single := -1
	probCols := map[int]int{}
	for j, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == ColTrueTarget:
			ttarg = j
		case name == ColPredTarget:
			ptarg = j
		case name == ColSampleID:
			sid = j
		case name == ColProbPrefix:
			single = j
		case strings.HasPrefix(name, ColProbPrefix):
			k, err := strconv.Atoi(strings.TrimPrefix(name, ColProbPrefix))
			if err != nil || k < 0 {
				return nil, errors.DataIntegrityf("unexpected probability column %q", name)
			}
			probCols[k] = j
		}
	}
	if ttarg < 0 || ptarg < 0 {
		return nil, errors.DataIntegrityf("header %v lacks %s/%s", header, ColTrueTarget, ColPredTarget)
	}

	classCount := len(probCols)
	switch {
	case single >= 0 && classCount == 0:
		classCount = 2
	case classCount < 2 || single >= 0:
		return nil, errors.DataIntegrityf("header %v has no usable probability columns", header)
	}
	for k := 0; k < classCount && single < 0; k++ {
		if _, ok := probCols[k]; !ok {
			return nil, errors.DataIntegrityf("missing column %s%d", ColProbPrefix, k)
		}
	}

	result := &cv.CanonicalResult{ClassCount: classCount, Rows: make([]cv.ResultRow, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, errors.DataIntegrityf("row %d has %d fields, expected %d", i, len(rec), len(header))
		}
		row := cv.ResultRow{SampleID: cv.SampleIndex(i), Probs: make([]float64, classCount)}
		if row.TrueLabel, err = parseLabel(rec[ttarg]); err != nil {
			return nil, errors.DataIntegrityf("row %d %s: %v", i, ColTrueTarget, err)
		}
		if row.PredLabel, err = parseLabel(rec[ptarg]); err != nil {
			return nil, errors.DataIntegrityf("row %d %s: %v", i, ColPredTarget, err)
		}
		if sid >= 0 {
			id, err := strconv.Atoi(strings.TrimSpace(rec[sid]))
			if err != nil {
				return nil, errors.DataIntegrityf("row %d %s: %v", i, ColSampleID, err)
			}
			row.SampleID = cv.SampleIndex(id)
		}
		if single >= 0 {
			p, err := strconv.ParseFloat(strings.TrimSpace(rec[single]), 64)
			if err != nil {
				return nil, errors.DataIntegrityf("row %d probs: %v", i, err)
			}
			row.Probs[0], row.Probs[1] = 1-p, p
		} else {
			for k := 0; k < classCount; k++ {
				p, err := strconv.ParseFloat(strings.TrimSpace(rec[probCols[k]]), 64)
				if err != nil {
					return nil, errors.DataIntegrityf("row %d %s%d: %v", i, ColProbPrefix, k, err)
				}
				row.Probs[k] = p
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// parseLabel accepts integer labels written as floats ("3.0")
func parseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not a class index", s)
	}
	return int(f), nil
}

// EncodeRelevance writes a relevance table CSV
func EncodeRelevance(w io.Writer, table *cv.RelevanceTable) error {
	if err := table.Validate(); err != nil {
		return errors.DataIntegrity(err.Error())
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for j, v := range row {
			record[j] = FormatFloat(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeRelevance reads a relevance table CSV
func DecodeRelevance(r io.Reader) (*cv.RelevanceTable, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	table := &cv.RelevanceTable{Columns: records[0]}
	for i, rec := range records[1:] {
		if len(rec) != len(table.Columns) {
			return nil, errors.DataIntegrityf("relevance row %d has %d fields, expected %d", i, len(rec), len(table.Columns))
		}
		row := make([]float64, len(rec))
		for j, field := range rec {
			if row[j], err = strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
				return nil, errors.DataIntegrityf("relevance row %d column %s: %v", i, table.Columns[j], err)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	if err := table.Validate(); err != nil {
		return nil, errors.DataIntegrity(err.Error())
	}
	return table, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.DataIntegrityf("parse csv: %v", err)
	}
	if len(records) == 0 {
		return nil, errors.DataIntegrity("file is empty")
	}
	return records, nil
}
