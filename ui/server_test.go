package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/domain/core"
	"morphocv/domain/cv"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

type fakeReader struct {
	reports []ports.ReportSummary
	html    map[core.RunID][]byte
	metrics map[core.RunID][]cv.MetricRecord
}

func (f *fakeReader) ListReports(context.Context) ([]ports.ReportSummary, error) {
	return f.reports, nil
}

func (f *fakeReader) ReportHTML(_ context.Context, id core.RunID) ([]byte, error) {
	if h, ok := f.html[id]; ok {
		return h, nil
	}
	return nil, errors.NotFound("report " + id.String())
}

func (f *fakeReader) ReportMetrics(_ context.Context, id core.RunID) ([]cv.MetricRecord, error) {
	if m, ok := f.metrics[id]; ok {
		return m, nil
	}
	return nil, errors.NotFound("report " + id.String())
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reader := &fakeReader{
		reports: []ports.ReportSummary{{RunID: "run-1", CreatedAt: time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC), Groups: []string{"reshuffle", "bootstrap"}, Records: 12}},
		html:    map[core.RunID][]byte{"run-1": []byte("<h1>Comparison run-1</h1>")},
		metrics: map[core.RunID][]cv.MetricRecord{"run-1": {{Group: "reshuffle", Experiment: "gpa", Baseline: "gpa", Accuracy: 0.6, Significance: 1}}},
	}
	s, err := NewServer(reader, "test", internal.NewLogger(internal.LogLevelError))
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndexListsReports(t *testing.T) {
	rec := get(t, newTestServer(t), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<a href="/reports/run-1">run-1</a>`)
	assert.Contains(t, body, "2024-04-02 09:30:00")
	assert.Contains(t, body, "reshuffle, bootstrap")
}

func TestReportHTML(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/reports/run-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>Comparison run-1</h1>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	assert.Equal(t, http.StatusNotFound, get(t, s, "/reports/run-2").Code)
}

func TestAPI(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Reports []ports.ReportSummary `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, 12, list.Reports[0].Records)

	rec = get(t, s, "/api/reports/run-1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics struct {
		RunID   string            `json:"run_id"`
		Metrics []cv.MetricRecord `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, "run-1", metrics.RunID)
	assert.Equal(t, 0.6, metrics.Metrics[0].Accuracy)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/reports/run-9/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
}
