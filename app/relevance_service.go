package app

import (
	"context"

	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/aggregate"
)

// RelevanceService reduces stored fold relevance to iteration and
// experiment tables
type RelevanceService struct {
	aggregator *aggregate.Aggregator
	logger     *internal.Logger
}

// NewRelevanceService creates the service
func NewRelevanceService(aggregator *aggregate.Aggregator, logger *internal.Logger) *RelevanceService {
	return &RelevanceService{aggregator: aggregator, logger: logger.WithComponent("relevance")}
}

// Reduce reduces one experiment. Per-population tables are produced for
// classifiers that report relevance per class. A consuming store keeps the
// fold files when the reduction fails.
func (s *RelevanceService) Reduce(ctx context.Context, desc cv.ExperimentDescriptor, iterationIDs []int, nFolds int) (*aggregate.RelevanceSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	perPopulation := desc.Classifier() == cv.FamilyGPC
	sum, err := s.aggregator.ReduceRelevance(desc, iterationIDs, nFolds, perPopulation)
	if err != nil {
		s.aggregator.ForgetReads()
		return nil, err
	}
	if err := s.aggregator.CommitReads(); err != nil {
		s.logger.Warn("%s: %v", desc.Key(), err)
	}
	s.logger.Info("%s: %d features, written %s", desc.Key(), sum.Mean.Width(), desc.RelevanceMeanFile())
	return sum, nil
}
