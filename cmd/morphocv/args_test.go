package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal/config"
	"morphocv/internal/errors"
	"morphocv/internal/resample"
)

func TestParseIterations(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"3", []int{3}},
		{"0-4", []int{0, 1, 2, 3, 4}},
		{"5,0-2,1", []int{0, 1, 2, 5}},
		{" 7 , 9 ", []int{7, 9}},
	}
	for _, tt := range tests {
		got, err := parseIterations(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", ",", "a", "-1", "4-2", "1-x"} {
		_, err := parseIterations(bad)
		assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), bad)
	}
}

func TestParsePositive(t *testing.T) {
	v, err := parsePositive("folds", "10")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = parsePositive("folds", "0")
	assert.ErrorContains(t, err, "folds")
}

func TestIndexFile(t *testing.T) {
	cfg := &config.Config{Paths: config.PathConfig{ReshuffleIndexFile: "reshuffle.csv"}}
	path, err := indexFile(cfg, cv.Reshuffle)
	require.NoError(t, err)
	assert.Equal(t, "reshuffle.csv", path)

	_, err = indexFile(cfg, cv.Bootstrap)
	assert.ErrorContains(t, err, "BOOTSTRAP_INDEX_FILE")
}

func TestResampleCommandWritesIndex(t *testing.T) {
	out := filepath.Join(t.TempDir(), "index", "boot.csv")
	cmd := newResampleCmd()
	cmd.SetArgs([]string{"8", "3", "bootstrap", out, "11"})
	require.NoError(t, cmd.Execute())

	perms, err := resample.ReadIndexFile(out, cv.Bootstrap)
	require.NoError(t, err)
	require.Len(t, perms, 3)
	assert.Len(t, perms[0].Indices, 8)

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}

func TestErrorLine(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.DataIntegrityf("fold %d missing", 2), "morphocv: DATA_INTEGRITY_ERROR: fold 2 missing"},
		{errors.Wrap(errors.ConfigInvalid("no catalog"), "compare"), "morphocv: CONFIGURATION_ERROR: compare: no catalog"},
		{os.ErrNotExist, "morphocv: file does not exist"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorLine(tt.err))
	}
}
