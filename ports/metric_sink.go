package ports

import (
	"context"
	"time"

	"morphocv/domain/core"
	"morphocv/domain/cv"
)

// MetricSink persists the metric records of one comparison run
type MetricSink interface {
	SaveMetrics(ctx context.Context, runID core.RunID, records []cv.MetricRecord) error
}

// ReportSummary lists one stored comparison report
type ReportSummary struct {
	RunID     core.RunID `json:"run_id"`
	CreatedAt time.Time  `json:"created_at"`
	Groups    []string   `json:"groups"`
	Records   int        `json:"records"`
}

// ReportReader gives read-only access to stored comparison reports
type ReportReader interface {
	ListReports(ctx context.Context) ([]ReportSummary, error)
	ReportHTML(ctx context.Context, runID core.RunID) ([]byte, error)
	ReportMetrics(ctx context.Context, runID core.RunID) ([]cv.MetricRecord, error)
}
