package gpc

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// fakeTool imitates the GP classification executable. The first feature of
// every test row holds the true label, so each one-vs-rest model is 0.8
// confident on its own class and 0.1 elsewhere.
type fakeTool struct {
	mu sync.Mutex
	// abnormal[k] is how many runs of class k end in a line-search failure
	abnormal map[int]int
	calls    map[int]int
	lengths  string
	fail     error
}

func (f *fakeTool) Run(_ context.Context, cmd ports.Command) ([]byte, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	testPath, out := cmd.Args[1], cmd.Args[2]
	k, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(out), "class"))
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls[k]++
	abnormal := f.calls[k] <= f.abnormal[k]
	f.mu.Unlock()

	if abnormal {
		return nil, os.WriteFile(out+SuffixStatus, []byte("Errorb'"+StatusAbnormalLineSearch+"'\n"), 0o644)
	}

	fh, err := os.Open(testPath)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		return nil, err
	}
	var pred strings.Builder
	for _, rec := range records {
		label, _ := strconv.ParseFloat(rec[0], 64)
		p := 0.1
		if int(label) == k {
			p = 0.8
		}
		fmt.Fprintf(&pred, "%g\n", p)
	}
	if err := os.WriteFile(out+SuffixPred, []byte(pred.String()), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(out+SuffixLength, []byte(f.lengths), 0o644); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(out+SuffixStatus, []byte("CONVERGENCE: REL_REDUCTION_OF_F_<=_FACTR*EPSMCH\n"), 0o644)
}

func newFake() *fakeTool {
	return &fakeTool{abnormal: map[int]int{}, calls: map[int]int{}, lengths: "2,4\n"}
}

func fixture(t *testing.T) ports.FoldTask {
	t.Helper()
	desc, err := cv.NewExperimentDescriptor(cv.ExperimentSpec{
		Key: "GPA_GPC", Resampling: cv.Reshuffle, Classifier: cv.FamilyGPC,
		PredPattern: "GPA_GPC_it{iter}.csv", RelevancePattern: "GPA_GPC_it{iter}_ard.csv",
	})
	require.NoError(t, err)
	data := &cv.Dataset{FeatureNames: []string{"f0", "f1"}}
	for i := 0; i < 12; i++ {
		label := i % 3
		data.SampleIDs = append(data.SampleIDs, cv.SampleIndex(100+i))
		data.Labels = append(data.Labels, label)
		data.Features = append(data.Features, []float64{float64(label), float64(i) / 10})
	}
	return ports.FoldTask{
		Experiment: desc,
		Iteration:  3,
		Fold:       cv.Fold{Index: 1, Start: 4, End: 8},
		Data:       data,
		ClassCount: 3,
		WorkDir:    t.TempDir(),
	}
}

func TestClassifyFold(t *testing.T) {
	task := fixture(t)
	c := NewClassifier(Options{Executable: "gpc-ard"}, newFake(), internal.NewLogger(internal.LogLevelError))
	assert.Equal(t, cv.FamilyGPC, c.Family())

	out, err := c.ClassifyFold(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, out.Rows, 4)

	for i, row := range out.Rows {
		pos := task.Fold.Start + i
		assert.Equal(t, cv.SampleIndex(100+pos), row.SampleID)
		assert.Equal(t, pos%3, row.TrueLabel)
		assert.Equal(t, row.TrueLabel, row.PredLabel)
		assert.InDelta(t, 0.8, row.Probs[row.TrueLabel], 1e-12)
		assert.InDelta(t, 1.0, row.Probs[0]+row.Probs[1]+row.Probs[2], 1e-12)
	}

	require.NotNil(t, out.ClassRelevance)
	assert.Len(t, out.ClassRelevance.Rows, 3)
	assert.Equal(t, []float64{0.5, 0.25}, out.ClassRelevance.Rows[2])
	assert.Equal(t, [][]float64{{0.5, 0.25}}, out.Relevance.Rows)

	entries, err := os.ReadDir(task.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "work files are removed after a successful fold")
}

func TestClassifyFold_RetriesAbnormalTermination(t *testing.T) {
	task := fixture(t)
	tool := newFake()
	tool.abnormal[1] = 2
	c := NewClassifier(Options{Executable: "gpc-ard", MaxRetries: 3}, tool, internal.NewLogger(internal.LogLevelError))

	_, err := c.ClassifyFold(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 3, tool.calls[1])
	assert.Equal(t, 1, tool.calls[0])
}

func TestClassifyFold_RetryBudgetExhausted(t *testing.T) {
	task := fixture(t)
	tool := newFake()
	tool.abnormal[0] = 10
	c := NewClassifier(Options{Executable: "gpc-ard", MaxRetries: 4}, tool, internal.NewLogger(internal.LogLevelError))

	_, err := c.ClassifyFold(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeExternalProcess))
	assert.Equal(t, 4, tool.calls[0])
}

func TestClassifyFold_ToolFailure(t *testing.T) {
	task := fixture(t)
	tool := newFake()
	tool.fail = errors.ExternalProcessError("gpc-ard", fmt.Errorf("exit code 1"))
	c := NewClassifier(Options{Executable: "gpc-ard"}, tool, internal.NewLogger(internal.LogLevelError))

	_, err := c.ClassifyFold(context.Background(), task)
	assert.True(t, errors.HasCode(err, errors.CodeExternalProcess))
}

func TestClassifyFold_BadLengthScales(t *testing.T) {
	task := fixture(t)
	tool := newFake()
	tool.lengths = "2,0\n"
	c := NewClassifier(Options{Executable: "gpc-ard"}, tool, internal.NewLogger(internal.LogLevelError))

	_, err := c.ClassifyFold(context.Background(), task)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))

	tool.lengths = "2\n"
	_, err = c.ClassifyFold(context.Background(), task)
	assert.True(t, errors.HasCode(err, errors.CodeDataIntegrity))
}

func TestInverseLengthScales(t *testing.T) {
	rel, err := InverseLengthScales([]float64{0.5, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0.25}, rel)

	_, err = InverseLengthScales([]float64{-1})
	assert.Error(t, err)
}

func TestReadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ls.csv")
	require.NoError(t, os.WriteFile(path, []byte("1.5, 2\t3\n"), 0o644))
	row, err := ReadRow(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 3}, row)
}
