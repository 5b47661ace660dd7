// Package resample reads and generates the shared resampling index files.
//
// An index file is an integer matrix: one row per sample position, one
// column per iteration. Column j is the permutation (or bootstrap draw) of
// iteration j and is reused verbatim by every classifier.
package resample

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// ReadIndexFile loads every iteration column of the index file at path
func ReadIndexFile(path string, kind cv.ResampleKind) ([]cv.Permutation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataIntegrityf("open index file %s: %v", path, err)
	}
	defer f.Close()

	perms, err := ParseIndex(f, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "index file %s", path)
	}
	return perms, nil
}

// ParseIndex decodes a whitespace or comma delimited index matrix
func ParseIndex(r io.Reader, kind cv.ResampleKind) ([]cv.Permutation, error) {
	var rows [][]cv.SampleIndex
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.FieldsFunc(scanner.Text(), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == ';'
		})
		if len(fields) == 0 {
			continue
		}
		row := make([]cv.SampleIndex, len(fields))
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil || v != float64(int(v)) {
				return nil, errors.DataIntegrityf("line %d column %d: %q is not an integer index", line, j+1, field)
			}
			row[j] = cv.SampleIndex(int(v))
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, errors.DataIntegrityf("line %d has %d columns, expected %d", line, len(row), len(rows[0]))
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.DataIntegrityf("read index matrix: %v", err)
	}
	if len(rows) == 0 {
		return nil, errors.DataIntegrity("index matrix is empty")
	}

	n, iterations := len(rows), len(rows[0])
	perms := make([]cv.Permutation, iterations)
	for it := range perms {
		indices := make([]cv.SampleIndex, n)
		for pos := range rows {
			indices[pos] = rows[pos][it]
		}
		perms[it] = cv.Permutation{Kind: kind, Iteration: it, Indices: indices}
		if err := perms[it].Validate(n); err != nil {
			return nil, errors.DataIntegrity(err.Error())
		}
	}
	return perms, nil
}

// Select returns the permutation of iteration it
func Select(perms []cv.Permutation, it int) (cv.Permutation, error) {
	if it < 0 || it >= len(perms) {
		return cv.Permutation{}, errors.ConfigInvalidf("iteration %d not in index file with %d iterations", it, len(perms))
	}
	return perms[it], nil
}

// Generate draws nIterations permutations of nSamples positions. The same
// seed always yields the same matrix.
func Generate(nSamples, nIterations int, kind cv.ResampleKind, seed uint64) ([]cv.Permutation, error) {
	if nSamples <= 0 || nIterations <= 0 {
		return nil, errors.ConfigInvalidf("need positive sample and iteration counts, got %d and %d", nSamples, nIterations)
	}
	if kind != cv.Reshuffle && kind != cv.Bootstrap {
		return nil, errors.ConfigInvalidf("unknown resampling kind %q", kind)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perms := make([]cv.Permutation, nIterations)
	for it := range perms {
		indices := make([]cv.SampleIndex, nSamples)
		switch kind {
		case cv.Reshuffle:
			for i := range indices {
				indices[i] = cv.SampleIndex(i)
			}
			rng.Shuffle(nSamples, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		case cv.Bootstrap:
			for i := range indices {
				indices[i] = cv.SampleIndex(rng.IntN(nSamples))
			}
		}
		perms[it] = cv.Permutation{Kind: kind, Iteration: it, Indices: indices}
	}
	return perms, nil
}

// WriteIndex writes perms as a space delimited matrix, one row per position
func WriteIndex(w io.Writer, perms []cv.Permutation) error {
	if len(perms) == 0 {
		return errors.ConfigInvalid("no permutations to write")
	}
	bw := bufio.NewWriter(w)
	n := perms[0].Len()
	for pos := 0; pos < n; pos++ {
		for it, p := range perms {
			if p.Len() != n {
				return errors.DataIntegrityf("iteration %d has %d positions, expected %d", it, p.Len(), n)
			}
			if it > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.Itoa(int(p.Indices[pos])))
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write index matrix: %w", err)
	}
	return nil
}
