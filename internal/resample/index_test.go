package resample

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

func TestParseIndex_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"whitespace", "2 0\n0 1\n1 2\n"},
		{"comma", "2,0\n0,1\n1,2\n"},
		{"float formatted", "2.0\t0.0\n0.0 1.0\n\n1.0 2.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms, err := ParseIndex(strings.NewReader(tt.input), cv.Reshuffle)
			require.NoError(t, err)
			require.Len(t, perms, 2)
			assert.Equal(t, []cv.SampleIndex{2, 0, 1}, perms[0].Indices)
			assert.Equal(t, []cv.SampleIndex{0, 1, 2}, perms[1].Indices)
			assert.Equal(t, 1, perms[1].Iteration)
		})
	}
}

func TestParseIndex_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		kind  cv.ResampleKind
		input string
	}{
		{"ragged", cv.Reshuffle, "0 1\n1\n"},
		{"non integer", cv.Reshuffle, "0.5\n1\n"},
		{"out of range", cv.Bootstrap, "0\n3\n"},
		{"repeat in reshuffle", cv.Reshuffle, "1\n1\n"},
		{"empty", cv.Reshuffle, "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIndex(strings.NewReader(tt.input), tt.kind)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))
		})
	}
}

func TestParseIndex_BootstrapAllowsRepeats(t *testing.T) {
	perms, err := ParseIndex(strings.NewReader("1\n1\n0\n"), cv.Bootstrap)
	require.NoError(t, err)
	assert.Equal(t, []cv.SampleIndex{1, 1, 0}, perms[0].Indices)
}

func TestGenerate_DeterministicAndValid(t *testing.T) {
	for _, kind := range []cv.ResampleKind{cv.Reshuffle, cv.Bootstrap} {
		a, err := Generate(209, 5, kind, 42)
		require.NoError(t, err)
		b, err := Generate(209, 5, kind, 42)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		for _, p := range a {
			assert.NoError(t, p.Validate(209))
			assert.Equal(t, kind, p.Kind)
		}
	}
}

func TestWriteAndReadIndexFile(t *testing.T) {
	perms, err := Generate(30, 4, cv.Reshuffle, 7)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteIndex(&buf, perms))
	path := filepath.Join(t.TempDir(), "rshfl_idx.txt")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	read, err := ReadIndexFile(path, cv.Reshuffle)
	require.NoError(t, err)
	assert.Equal(t, perms, read)

	p, err := Select(read, 3)
	require.NoError(t, err)
	assert.Equal(t, perms[3].Indices, p.Indices)

	_, err = Select(read, 4)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
