package ports

import (
	"context"

	"morphocv/domain/cv"
)

// FoldTask is one fold of one resampling iteration. Data rows are already
// permuted and standardized; Fold indexes into them.
type FoldTask struct {
	Experiment cv.ExperimentDescriptor
	Iteration  int
	Fold       cv.Fold
	Data       *cv.Dataset
	ClassCount int
	WorkDir    string
}

// Train returns the training rows of the fold
func (t FoldTask) Train() *cv.Dataset { return t.Data.Without(t.Fold.Start, t.Fold.End) }

// Test returns the test rows of the fold in permutation order
func (t FoldTask) Test() *cv.Dataset { return t.Data.Rows(t.Fold.Start, t.Fold.End) }

// FoldOutcome carries canonical rows for exactly the fold's test positions.
// Relevance is nil for classifiers without feature relevance.
type FoldOutcome struct {
	Fold           cv.Fold
	Rows           []cv.ResultRow
	Relevance      *cv.RelevanceTable // one row: the fold summary
	ClassRelevance *cv.RelevanceTable // one row per class, when available
}

// FoldClassifier trains and evaluates one classifier family on a fold
type FoldClassifier interface {
	Family() cv.ClassifierFamily
	ClassifyFold(ctx context.Context, task FoldTask) (*FoldOutcome, error)
}

// IterationTask describes the whole iteration before its folds run
type IterationTask struct {
	Experiment cv.ExperimentDescriptor
	Iteration  int
	Folds      []cv.Fold
	Data       *cv.Dataset
	ClassCount int
	WorkDir    string
}

// IterationPreparer is implemented by classifiers that need per-iteration setup
type IterationPreparer interface {
	PrepareIteration(ctx context.Context, task IterationTask) error
}
