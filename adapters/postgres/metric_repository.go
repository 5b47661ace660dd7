package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"morphocv/domain/core"
	"morphocv/domain/cv"
	"morphocv/internal/errors"
	"morphocv/ports"
)

const metricSchema = `
	CREATE TABLE IF NOT EXISTS comparison_metrics (
		run_id             TEXT NOT NULL,
		group_name         TEXT NOT NULL,
		experiment         TEXT NOT NULL,
		baseline           TEXT NOT NULL,
		iteration          INTEGER NOT NULL,
		accuracy           DOUBLE PRECISION NOT NULL,
		mutual_information DOUBLE PRECISION NOT NULL,
		significance       DOUBLE PRECISION NOT NULL,
		baseline_only      INTEGER NOT NULL,
		other_only         INTEGER NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, group_name, experiment, iteration)
	)`

const insertMetric = `
	INSERT INTO comparison_metrics (
		run_id, group_name, experiment, baseline, iteration, accuracy,
		mutual_information, significance, baseline_only, other_only, created_at
	) VALUES (
		:run_id, :group_name, :experiment, :baseline, :iteration, :accuracy,
		:mutual_information, :significance, :baseline_only, :other_only, :created_at
	)`

// metricRow is one stored MetricRecord
type metricRow struct {
	RunID     string    `db:"run_id"`
	CreatedAt time.Time `db:"created_at"`
	cv.MetricRecord
}

// MetricRepository stores comparison metrics in Postgres. Significance is
// stored raw.
type MetricRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ ports.MetricSink = (*MetricRepository)(nil)

// NewMetricRepository creates a new metric repository
func NewMetricRepository(db *sqlx.DB) *MetricRepository {
	return &MetricRepository{db: db, now: time.Now}
}

// Connect opens the database at url and makes sure the metrics table exists
func Connect(ctx context.Context, url string) (*MetricRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to connect to database: %w", err))
	}
	repo := NewMetricRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the metrics table when missing
func (r *MetricRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, metricSchema); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to create comparison_metrics: %w", err))
	}
	return nil
}

// SaveMetrics inserts every record of a run in one transaction
func (r *MetricRepository) SaveMetrics(ctx context.Context, runID core.RunID, records []cv.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	for _, row := range metricRows(runID, r.now().UTC(), records) {
		if _, err := tx.NamedExecContext(ctx, insertMetric, row); err != nil {
			return errors.WithCode(errors.CodeDatabaseError,
				fmt.Errorf("failed to insert metric %s/%s iteration %d: %w", row.Group, row.Experiment, row.Iteration, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to commit metrics: %w", err))
	}
	return nil
}

// Metrics returns the stored records of a run in group, experiment and
// iteration order
func (r *MetricRepository) Metrics(ctx context.Context, runID core.RunID) ([]cv.MetricRecord, error) {
	var rows []metricRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, group_name, experiment, baseline, iteration, accuracy,
		       mutual_information, significance, baseline_only, other_only, created_at
		FROM comparison_metrics
		WHERE run_id = $1
		ORDER BY group_name, experiment, iteration`, runID.String())
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to query metrics: %w", err))
	}
	out := make([]cv.MetricRecord, len(rows))
	for i, row := range rows {
		out[i] = row.MetricRecord
	}
	return out, nil
}

// Close closes the database handle
func (r *MetricRepository) Close() error { return r.db.Close() }

func metricRows(runID core.RunID, at time.Time, records []cv.MetricRecord) []metricRow {
	rows := make([]metricRow, len(records))
	for i, rec := range records {
		rows[i] = metricRow{RunID: runID.String(), CreatedAt: at, MetricRecord: rec}
	}
	return rows
}
