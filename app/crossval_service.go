package app

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/errgroup"

	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/dataset"
	"morphocv/internal/errors"
	"morphocv/internal/folds"
	"morphocv/internal/metrics"
	"morphocv/internal/resample"
	"morphocv/ports"
)

// CrossValidationService runs one classifier over resampled k-fold splits
// and stores a canonical result per iteration
type CrossValidationService struct {
	classifier ports.FoldClassifier
	store      ports.ResultStore
	logger     *internal.Logger
	maxThreads int
	tolerance  float64
}

// NewCrossValidationService creates the service. maxThreads bounds the
// folds of one iteration that run at the same time.
func NewCrossValidationService(classifier ports.FoldClassifier, store ports.ResultStore, maxThreads int, tolerance float64, logger *internal.Logger) *CrossValidationService {
	if maxThreads < 1 {
		maxThreads = 1
	}
	if tolerance <= 0 {
		tolerance = cv.DefaultProbabilityTolerance
	}
	return &CrossValidationService{
		classifier: classifier,
		store:      store,
		logger:     logger.WithComponent("crossval"),
		maxThreads: maxThreads,
		tolerance:  tolerance,
	}
}

// CrossValidationRequest defines one evaluation run
type CrossValidationRequest struct {
	Experiment cv.ExperimentDescriptor
	// Data holds the specimens in their original order
	Data *cv.Dataset
	// Selection lists feature columns to keep; empty keeps all
	Selection []int
	// Permutations are the shared resample index, one per iteration
	Permutations []cv.Permutation
	IterationIDs []int
	NFolds       int
	Normalise    bool
	WorkDir      string
}

// IterationSummary describes one stored iteration
type IterationSummary struct {
	Iteration int           `json:"iteration"`
	Rows      int           `json:"rows"`
	Accuracy  float64       `json:"accuracy"`
	Duration  time.Duration `json:"duration"`
}

// CrossValidationResult lists the iterations that completed
type CrossValidationResult struct {
	Experiment string             `json:"experiment"`
	Iterations []IterationSummary `json:"iterations"`
	Failed     []int              `json:"failed,omitempty"`
}

// Run evaluates every requested iteration. A failing iteration is logged
// and skipped; the returned error joins all iteration failures and the
// result still lists the iterations that were stored.
func (s *CrossValidationService) Run(ctx context.Context, req CrossValidationRequest) (*CrossValidationResult, error) {
	desc := req.Experiment
	if desc.Classifier() != s.classifier.Family() {
		return nil, errors.ConfigInvalidf("experiment %s is a %s experiment, classifier is %s", desc.Key(), desc.Classifier(), s.classifier.Family())
	}
	if len(req.IterationIDs) == 0 {
		return nil, errors.ConfigInvalidf("experiment %s: no iterations requested", desc.Key())
	}
	if err := req.Data.Validate(); err != nil {
		return nil, errors.DataIntegrityf("experiment %s: %v", desc.Key(), err)
	}

	data := req.Data
	if len(req.Selection) > 0 {
		var err error
		if data, err = dataset.SelectFeatures(data, req.Selection); err != nil {
			return nil, errors.Wrapf(err, "experiment %s", desc.Key())
		}
	}
	foldList, err := folds.Partition(data.Len(), req.NFolds)
	if err != nil {
		return nil, err
	}
	classCount := data.ClassCount()

	result := &CrossValidationResult{Experiment: desc.Key()}
	var errs []error
	for _, it := range req.IterationIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		summary, err := s.runIteration(ctx, req, data, it, foldList, classCount)
		if err != nil {
			s.logger.Error("%s iteration %d failed: %v", desc.Key(), it, err)
			errs = append(errs, errors.Wrapf(err, "experiment %s iteration %d", desc.Key(), it))
			result.Failed = append(result.Failed, it)
			continue
		}
		summary.Duration = time.Since(start)
		s.logger.Info("%s iteration %d: accuracy %.4f over %d rows in %s", desc.Key(), it, summary.Accuracy, summary.Rows, summary.Duration.Round(time.Millisecond))
		result.Iterations = append(result.Iterations, *summary)
	}
	return result, stderrors.Join(errs...)
}

func (s *CrossValidationService) runIteration(ctx context.Context, req CrossValidationRequest, data *cv.Dataset, it int, foldList []cv.Fold, classCount int) (*IterationSummary, error) {
	desc := req.Experiment
	perm, err := resample.Select(req.Permutations, it)
	if err != nil {
		return nil, err
	}
	if perm.Kind != desc.Resampling() {
		return nil, errors.ConfigInvalidf("index is %s, experiment %s uses %s", perm.Kind, desc.Key(), desc.Resampling())
	}
	permuted, err := dataset.Permute(data, perm)
	if err != nil {
		return nil, err
	}
	if req.Normalise {
		constant, err := dataset.Standardize(permuted)
		if err != nil {
			return nil, err
		}
		if len(constant) > 0 {
			s.logger.Warn("%s iteration %d: %d constant feature columns left unscaled", desc.Key(), it, len(constant))
		}
	}

	if prep, ok := s.classifier.(ports.IterationPreparer); ok {
		task := ports.IterationTask{Experiment: desc, Iteration: it, Folds: foldList, Data: permuted, ClassCount: classCount, WorkDir: req.WorkDir}
		if err := prep.PrepareIteration(ctx, task); err != nil {
			return nil, err
		}
	}

	outcomes, err := s.classifyFolds(ctx, desc, it, foldList, permuted, classCount, req.WorkDir)
	if err != nil {
		return nil, err
	}

	// every fold has returned; assemble in fold order
	res := &cv.CanonicalResult{ClassCount: classCount, Rows: make([]cv.ResultRow, 0, permuted.Len())}
	for _, o := range outcomes {
		res.Rows = append(res.Rows, o.Rows...)
	}
	if err := res.Validate(permuted.Len(), s.tolerance); err != nil {
		return nil, err
	}
	if err := s.storeRelevance(desc, it, outcomes); err != nil {
		return nil, err
	}
	if err := s.store.WritePredictions(desc.PredictionFile(it), res); err != nil {
		return nil, err
	}
	return &IterationSummary{Iteration: it, Rows: res.Len(), Accuracy: metrics.Accuracy(res)}, nil
}

// classifyFolds runs the folds in parallel. Wait is the barrier: the first
// failure cancels the remaining folds and fails the iteration.
func (s *CrossValidationService) classifyFolds(ctx context.Context, desc cv.ExperimentDescriptor, it int, foldList []cv.Fold, data *cv.Dataset, classCount int, workDir string) ([]*ports.FoldOutcome, error) {
	outcomes := make([]*ports.FoldOutcome, len(foldList))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxThreads)
	for i, fold := range foldList {
		g.Go(func() error {
			task := ports.FoldTask{Experiment: desc, Iteration: it, Fold: fold, Data: data, ClassCount: classCount, WorkDir: workDir}
			s.logger.Debug("%s iteration %d fold %d [%d,%d) started", desc.Key(), it, fold.Index, fold.Start, fold.End)
			out, err := s.classifier.ClassifyFold(gctx, task)
			if err != nil {
				return errors.Wrapf(err, "fold %d", fold.Index)
			}
			if len(out.Rows) != fold.Size() {
				return errors.DataIntegrityf("fold %d returned %d rows for %d test samples", fold.Index, len(out.Rows), fold.Size())
			}
			outcomes[i] = out
			s.logger.Debug("%s iteration %d fold %d finished", desc.Key(), it, fold.Index)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// storeRelevance writes the fold-by-feature table of the iteration and any
// per-class fold tables
func (s *CrossValidationService) storeRelevance(desc cv.ExperimentDescriptor, it int, outcomes []*ports.FoldOutcome) error {
	if !desc.HasRelevance() {
		return nil
	}
	table := &cv.RelevanceTable{}
	for _, o := range outcomes {
		if o.Relevance == nil || len(o.Relevance.Rows) != 1 {
			return errors.DataIntegrityf("fold %d returned no relevance row", o.Fold.Index)
		}
		if table.Columns == nil {
			table.Columns = o.Relevance.Columns
		}
		table.Rows = append(table.Rows, o.Relevance.Rows[0])
	}
	if err := table.Validate(); err != nil {
		return errors.DataIntegrity(err.Error())
	}
	for _, o := range outcomes {
		if o.ClassRelevance == nil {
			continue
		}
		if err := s.store.WriteRelevance(desc.FoldClassRelevanceFile(it, o.Fold.Index), o.ClassRelevance); err != nil {
			return err
		}
	}
	return s.store.WriteRelevance(desc.RelevanceFile(it), table)
}
