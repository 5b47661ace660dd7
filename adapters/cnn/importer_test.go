package cnn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/adapters/resultstore"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
)

func setup(t *testing.T) (*Importer, *resultstore.FileStore, cv.ExperimentDescriptor, string) {
	t.Helper()
	logger := internal.NewLogger(internal.LogLevelError)
	store, err := resultstore.NewFileStore(t.TempDir(), false, logger)
	require.NoError(t, err)
	desc, err := cv.NewExperimentDescriptor(cv.ExperimentSpec{
		Key: "cnnshfl", InputType: "Deep CNV", Resampling: cv.Reshuffle, Classifier: cv.FamilyCNN,
		PredPattern: "rshfl_cnn_it{iter}_allpreds.csv",
	})
	require.NoError(t, err)
	return NewImporter(store, 0, logger), store, desc, t.TempDir()
}

func TestImport_ReordersColumns(t *testing.T) {
	im, store, desc, src := setup(t)
	// probability columns first, targets last, as the network writes them
	body := "probs1,probs0,probs2,ptarg,ttarg\n0.7,0.2,0.1,1,1\n0.1,0.1,0.8,2,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(src, "cnn_0.csv"), []byte(body), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "cnn_1.csv"), []byte(body), 0o644))

	err := im.Import(desc, filepath.Join(src, "cnn_{iter}.csv"), []int{0, 1}, 2)
	require.NoError(t, err)

	res, err := store.ReadPredictions(desc.PredictionFile(1))
	require.NoError(t, err)
	assert.Equal(t, 3, res.ClassCount)
	assert.Equal(t, []int{1, 0}, res.TrueLabels())
	assert.Equal(t, []float64{0.2, 0.7, 0.1}, res.Rows[0].Probs)
	assert.Equal(t, cv.SampleIndex(1), res.Rows[1].SampleID)
}

func TestImport_ContinuesPastFailedIteration(t *testing.T) {
	im, store, desc, src := setup(t)
	good := "ttarg,ptarg,probs0,probs1\n0,0,0.6,0.4\n"
	bad := "ttarg,ptarg,probs0,probs1\n0,0,0.6,0.6\n"
	require.NoError(t, os.WriteFile(filepath.Join(src, "p0.csv"), []byte(bad), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "p2.csv"), []byte(good), 0o644))

	err := im.Import(desc, filepath.Join(src, "p{iter}.csv"), []int{0, 1, 2}, 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))
	assert.Contains(t, err.Error(), "iteration 0")
	assert.Contains(t, err.Error(), "iteration 1")

	assert.False(t, store.Exists(desc.PredictionFile(0)))
	assert.True(t, store.Exists(desc.PredictionFile(2)))
}

func TestImport_Rejects(t *testing.T) {
	im, _, desc, src := setup(t)
	err := im.Import(desc, filepath.Join(src, "fixed.csv"), []int{0}, 0)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))

	gpc, err := cv.NewExperimentDescriptor(cv.ExperimentSpec{Key: "g", Resampling: cv.Reshuffle, Classifier: cv.FamilyGPC, PredPattern: "g{iter}"})
	require.NoError(t, err)
	err = im.Import(gpc, filepath.Join(src, "p{iter}.csv"), []int{0}, 0)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
