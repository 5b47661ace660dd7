package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"GPC_MAX_RETRIES", "MAX_SIGNIFICANCE", "CONSUME_RESULTS", "HMC_ARD_LEVEL", "CLASS_LABELS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.GPC.MaxRetries)
	assert.Equal(t, 0.999, cfg.Reporting.MaxSignificance)
	assert.False(t, cfg.Run.ConsumeResults)
	assert.True(t, cfg.Run.Normalise)
	assert.GreaterOrEqual(t, cfg.Run.MaxThreads, 1)
	assert.Nil(t, cfg.Run.ClassLabels)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GPC_MAX_RETRIES", "3")
	t.Setenv("MAX_THREADS", "8")
	t.Setenv("CLASS_LABELS", "LA, LB ,SA")
	t.Setenv("CONSUME_RESULTS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.GPC.MaxRetries)
	assert.Equal(t, 8, cfg.Run.MaxThreads)
	assert.Equal(t, []string{"LA", "LB", "SA"}, cfg.Run.ClassLabels)
	assert.True(t, cfg.Run.ConsumeResults)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"ard level out of range", "HMC_ARD_LEVEL", "3"},
		{"zero retries", "GPC_MAX_RETRIES", "0"},
		{"significance above one", "MAX_SIGNIFICANCE", "1.5"},
		{"zero threads", "MAX_THREADS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
		})
	}
}

const catalogYAML = `
experiments:
  - key: GPA_GPC_rshfl
    label: GPA+GPC
    input_type: GPA
    resampling: reshuffle
    classifier: GPC
    predictions: GPA_GPC_rshfl_it{iter}.csv
    relevance: GPA_GPC_rshfl_it{iter}_ard.csv
  - key: CNN_rshfl
    input_type: image
    resampling: rshfl
    classifier: cnn
    predictions: CNN_rshfl_it{iter}.csv
  - key: GPA_MLP_rsmp
    input_type: GPA
    resampling: bootstrap
    classifier: HMC-MLP
    predictions: GPA_MLP_rsmp_it{iter}.csv
    relevance: GPA_MLP_rsmp_it{iter}_ard.csv
groups:
  - name: reshuffle
    select:
      resampling: [reshuffle]
  - name: gpa-bootstrap
    select:
      resampling: [bootstrap]
      inputtype: [GPA]
`

func TestParseExperiments(t *testing.T) {
	exps, err := ParseExperiments([]byte(catalogYAML))
	require.NoError(t, err)

	all := exps.Catalog.All()
	require.Len(t, all, 3)
	assert.Equal(t, "GPA_GPC_rshfl", all[0].Key())
	assert.Equal(t, "GPA+GPC", all[0].Label())
	assert.Equal(t, "CNN_rshfl", all[1].Label())
	assert.Equal(t, cv.FamilyCNN, all[1].Classifier())
	assert.Equal(t, cv.Reshuffle, all[1].Resampling())
	assert.False(t, all[1].HasRelevance())
	assert.Equal(t, "GPA_GPC_rshfl_it7.csv", all[0].PredictionFile(7))

	g, ok := exps.Group("reshuffle")
	require.True(t, ok)
	sel, err := exps.Catalog.Select(g.Selection)
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, "CNN_rshfl", sel[1].Key())
}

func TestParseExperiments_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "experiments: []\n"},
		{"missing key", "experiments:\n  - input_type: x\n    resampling: reshuffle\n    classifier: GPC\n    predictions: a{iter}.csv\n"},
		{"unknown resampling", "experiments:\n  - key: a\n    input_type: x\n    resampling: jackknife\n    classifier: GPC\n    predictions: a{iter}.csv\n"},
		{"pattern without placeholder", "experiments:\n  - key: a\n    input_type: x\n    resampling: reshuffle\n    classifier: GPC\n    predictions: a.csv\n"},
		{"duplicate key", "experiments:\n  - key: a\n    input_type: x\n    resampling: reshuffle\n    classifier: GPC\n    predictions: a{iter}.csv\n  - key: a\n    input_type: x\n    resampling: reshuffle\n    classifier: GPC\n    predictions: b{iter}.csv\n"},
		{"unknown field", "experiments:\n  - key: a\n    colour: red\n"},
		{"unknown group attribute", "experiments:\n  - key: a\n    input_type: x\n    resampling: reshuffle\n    classifier: GPC\n    predictions: a{iter}.csv\ngroups:\n  - name: g\n    select:\n      colour: [red]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExperiments([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "got %v", err)
		})
	}
}

func TestLoadExperiments_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))

	exps, err := LoadExperiments(path)
	require.NoError(t, err)
	_, ok := exps.Catalog.Lookup("GPA_MLP_rsmp")
	assert.True(t, ok)

	_, err = LoadExperiments(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
