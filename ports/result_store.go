package ports

import "morphocv/domain/cv"

// ResultStore persists canonical prediction and relevance tables as flat
// files. Names are relative to the store root.
type ResultStore interface {
	WritePredictions(name string, result *cv.CanonicalResult) error
	ReadPredictions(name string) (*cv.CanonicalResult, error)
	WriteRelevance(name string, table *cv.RelevanceTable) error
	ReadRelevance(name string) (*cv.RelevanceTable, error)
	Exists(name string) bool
}

// ReadCommitter is implemented by stores that delete the files they read.
// Reads only mark files: CommitReads deletes them once the caller's work has
// succeeded, ForgetReads keeps them after a failure so the run can be
// repeated.
type ReadCommitter interface {
	CommitReads() error
	ForgetReads()
}
