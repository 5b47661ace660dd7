package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"morphocv/domain/core"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// File names inside one run directory
const (
	FileMetricsCSV = "metrics.csv"
	FileSummaryMD  = "summary.md"
	FileSummary    = "summary.html"
	FileWorkbook   = "report.xlsx"
	FileParquet    = "metrics.parquet"
	FileManifest   = "report.json"
)

// manifest is the machine-readable record of a run. Metrics keep raw
// p-values.
type manifest struct {
	RunID           core.RunID        `json:"run_id"`
	CreatedAt       time.Time         `json:"created_at"`
	Groups          []string          `json:"groups"`
	MaxSignificance float64           `json:"max_significance"`
	Metrics         []cv.MetricRecord `json:"metrics"`
	Summary         []SummaryRow      `json:"summary"`
}

// Archive stores every comparison run in its own directory under root
type Archive struct {
	root   string
	logger *internal.Logger
}

var _ ports.ReportReader = (*Archive)(nil)

// NewArchive creates root if needed
func NewArchive(root string, logger *internal.Logger) (*Archive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.ConfigInvalidf("create report directory %s: %v", root, err)
	}
	return &Archive{root: root, logger: logger.WithComponent("report")}, nil
}

// RunDir is the directory of one run
func (a *Archive) RunDir(id core.RunID) string { return filepath.Join(a.root, id.String()) }

// Save writes every report format. Files are staged in a temporary
// directory that is renamed into place once complete.
func (a *Archive) Save(r *Report) (string, error) {
	if r.RunID == "" {
		return "", errors.ConfigInvalid("report has no run id")
	}
	summary, err := Summarize(r)
	if err != nil {
		return "", err
	}
	final := a.RunDir(r.RunID)
	if _, err := os.Stat(final); err == nil {
		return "", errors.ConfigInvalidf("report %s already exists", r.RunID)
	}
	stage, err := os.MkdirTemp(a.root, "."+r.RunID.String()+"-*")
	if err != nil {
		return "", errors.Wrap(err, "stage report")
	}
	if err := a.writeAll(stage, r, summary); err != nil {
		os.RemoveAll(stage)
		return "", err
	}
	if err := os.Rename(stage, final); err != nil {
		os.RemoveAll(stage)
		return "", errors.Wrapf(err, "publish report %s", r.RunID)
	}
	a.logger.Info("report %s written to %s (%d records)", r.RunID, final, len(r.Metrics))
	return final, nil
}

func (a *Archive) writeAll(dir string, r *Report, summary []SummaryRow) error {
	f, err := os.Create(filepath.Join(dir, FileMetricsCSV))
	if err != nil {
		return errors.Wrap(err, "create metrics table")
	}
	if err := WriteMetricsCSV(f, r); err != nil {
		f.Close()
		return errors.Wrap(err, "write metrics table")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close metrics table")
	}

	md := Markdown(r, summary)
	if err := os.WriteFile(filepath.Join(dir, FileSummaryMD), md, 0o644); err != nil {
		return errors.Wrap(err, "write markdown summary")
	}
	html := RenderHTML(md, "Comparison "+r.RunID.String())
	if err := os.WriteFile(filepath.Join(dir, FileSummary), html, 0o644); err != nil {
		return errors.Wrap(err, "write html summary")
	}
	if err := WriteWorkbook(filepath.Join(dir, FileWorkbook), r, summary); err != nil {
		return err
	}
	if err := WriteParquet(filepath.Join(dir, FileParquet), r); err != nil {
		return err
	}

	data, err := json.MarshalIndent(manifest{
		RunID:           r.RunID,
		CreatedAt:       r.CreatedAt.UTC(),
		Groups:          r.Groups(),
		MaxSignificance: r.capLimit(),
		Metrics:         r.Metrics,
		Summary:         summary,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	return os.WriteFile(filepath.Join(dir, FileManifest), data, 0o644)
}

func (a *Archive) readManifest(id core.RunID) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(a.RunDir(id), FileManifest))
	if os.IsNotExist(err) {
		return nil, errors.NotFound("report " + id.String())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read report %s", id)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.DataIntegrityf("report %s: %v", id, err)
	}
	return &m, nil
}

// ListReports returns every complete run, newest first
func (a *Archive) ListReports(ctx context.Context) ([]ports.ReportSummary, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", a.root)
	}
	var out []ports.ReportSummary
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := core.ParseRunID(e.Name())
		if !e.IsDir() || err != nil || e.Name()[0] == '.' {
			continue
		}
		m, err := a.readManifest(id)
		if err != nil {
			a.logger.Warn("skipping %s: %v", e.Name(), err)
			continue
		}
		out = append(out, ports.ReportSummary{RunID: m.RunID, CreatedAt: m.CreatedAt, Groups: m.Groups, Records: len(m.Metrics)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RunID > out[j].RunID
	})
	return out, nil
}

// ReportHTML returns the rendered summary of a run
func (a *Archive) ReportHTML(ctx context.Context, id core.RunID) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.RunDir(id), FileSummary))
	if os.IsNotExist(err) {
		return nil, errors.NotFound("report " + id.String())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read report %s", id)
	}
	return data, nil
}

// ReportMetrics returns the raw metric records of a run
func (a *Archive) ReportMetrics(ctx context.Context, id core.RunID) ([]cv.MetricRecord, error) {
	m, err := a.readManifest(id)
	if err != nil {
		return nil, err
	}
	return m.Metrics, nil
}
