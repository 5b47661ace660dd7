package app

import (
	"context"
	"time"

	"morphocv/adapters/report"
	"morphocv/domain/core"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/aggregate"
	"morphocv/internal/errors"
	"morphocv/internal/metrics"
	"morphocv/ports"
)

// ReportArchive stores a finished comparison report
type ReportArchive interface {
	Save(r *report.Report) (string, error)
}

// ComparisonService loads stored predictions, compares experiments against
// their group baseline and writes the report
type ComparisonService struct {
	aggregator *aggregate.Aggregator
	archive    ReportArchive
	sink       ports.MetricSink
	logger     *internal.Logger
	maxSig     float64
	now        func() time.Time
}

// NewComparisonService creates the service. sink may be nil.
func NewComparisonService(aggregator *aggregate.Aggregator, archive ReportArchive, sink ports.MetricSink, maxSig float64, logger *internal.Logger) *ComparisonService {
	return &ComparisonService{
		aggregator: aggregator,
		archive:    archive,
		sink:       sink,
		logger:     logger.WithComponent("compare"),
		maxSig:     maxSig,
		now:        time.Now,
	}
}

// ComparisonRequest selects what to compare
type ComparisonRequest struct {
	Catalog *cv.Catalog
	// Groups are compared independently; none compares the whole catalog
	Groups       []metrics.Group
	IterationIDs []int
	// ExpectedRows is the sample count; <= 0 only requires agreement
	ExpectedRows int
	ClassLabels  []string
}

// ComparisonResult is the outcome of one comparison run
type ComparisonResult struct {
	RunID     core.RunID
	ReportDir string
	Records   []cv.MetricRecord
}

// Compare runs the comparison. Loading is all-or-nothing: a missing or
// invalid experiment aborts the run because the baseline is only known
// once every experiment has been scored. A consuming store deletes its
// inputs only after the report has been saved.
func (s *ComparisonService) Compare(ctx context.Context, req ComparisonRequest) (*ComparisonResult, error) {
	descs, err := s.selectExperiments(req)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.aggregator.ForgetReads()
		}
	}()
	exps, err := s.aggregator.LoadExperiments(descs, req.IterationIDs, req.ExpectedRows)
	if err != nil {
		return nil, err
	}
	records, err := metrics.CompareGroups(exps, req.Groups)
	if err != nil {
		return nil, err
	}
	defaults, err := metrics.CompareToDefaultPredictor(exps)
	if err != nil {
		return nil, err
	}

	rep := &report.Report{
		RunID:           core.NewRunID(),
		CreatedAt:       s.now(),
		MaxSignificance: s.maxSig,
		Experiments:     descs,
		Metrics:         records,
		Default:         defaults,
		Confusion:       metrics.ConfusionTables(exps),
		ClassLabels:     req.ClassLabels,
	}
	dir, err := s.archive.Save(rep)
	if err != nil {
		return nil, err
	}
	committed = true
	if err := s.aggregator.CommitReads(); err != nil {
		s.logger.Warn("report %s saved: %v", rep.RunID, err)
	}
	result := &ComparisonResult{RunID: rep.RunID, ReportDir: dir, Records: records}

	if s.sink != nil {
		if err := s.sink.SaveMetrics(ctx, rep.RunID, records); err != nil {
			return result, errors.Wrapf(err, "report %s saved but metrics were not persisted", rep.RunID)
		}
		s.logger.Info("persisted %d metric records for %s", len(records), rep.RunID)
	}
	return result, nil
}

// selectExperiments returns the union of the groups' experiments in catalog
// order, or the whole catalog without groups
func (s *ComparisonService) selectExperiments(req ComparisonRequest) ([]cv.ExperimentDescriptor, error) {
	if req.Catalog == nil {
		return nil, errors.ConfigInvalid("no experiment catalog")
	}
	if len(req.Groups) == 0 {
		return req.Catalog.All(), nil
	}
	wanted := map[string]bool{}
	for _, g := range req.Groups {
		sel, err := req.Catalog.Select(g.Selection)
		if err != nil {
			return nil, errors.ConfigInvalidf("group %s: %v", g.Name, err)
		}
		if len(sel) == 0 {
			return nil, errors.ConfigInvalidf("group %s selects no experiments", g.Name)
		}
		for _, d := range sel {
			wanted[d.Key()] = true
		}
	}
	var out []cv.ExperimentDescriptor
	for _, d := range req.Catalog.All() {
		if wanted[d.Key()] {
			out = append(out, d)
		}
	}
	return out, nil
}
