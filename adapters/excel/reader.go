package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// SpecimenReader loads specimen feature tables from Excel or CSV files.
// Each row is: sample name, integer class label, feature values.
type SpecimenReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewSpecimenReader creates a reader that handles both Excel and CSV files
func NewSpecimenReader(filePath string) *SpecimenReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "csv"
	if ext == ".xlsx" || ext == ".xlsm" {
		fileType = "xlsx"
	}
	return &SpecimenReader{filePath: filePath, fileType: fileType}
}

// ReadSpecimens reads the table into a dataset whose sample ids are the
// 0-based row positions of the file
func (r *SpecimenReader) ReadSpecimens() (*cv.Dataset, error) {
	log.Printf("[SpecimenReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.DataIntegrityf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, errors.ConfigInvalidf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	return r.processRows(rows)
}

// readExcelRows reads the first sheet of the workbook
func (r *SpecimenReader) readExcelRows() ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.DataIntegrityf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.DataIntegrityf("Excel file %s has no sheets", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.DataIntegrityf("failed to read %s: %v", sheets[0], err)
	}
	log.Printf("[SpecimenReader] %s read in %.2fms (%d rows)", sheets[0], float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// readCSVRows reads comma separated rows; the study tables carry no header
func (r *SpecimenReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.DataIntegrityf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.DataIntegrityf("failed to read CSV file: %v", err)
	}
	log.Printf("[SpecimenReader] CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// processRows converts raw string rows into a dataset. A first row whose
// label cell is not numeric is taken as a header.
func (r *SpecimenReader) processRows(rows [][]string) (*cv.Dataset, error) {
	rows = trimEmptyRows(rows)
	if len(rows) == 0 {
		return nil, errors.DataIntegrityf("%s contains no specimen rows", r.filePath)
	}

	var header []string
	if len(rows[0]) > 1 {
		if _, err := strconv.Atoi(strings.TrimSpace(rows[0][1])); err != nil {
			header = rows[0]
			rows = rows[1:]
		}
	}
	if len(rows) == 0 {
		return nil, errors.DataIntegrityf("%s contains a header but no specimen rows", r.filePath)
	}

	width := len(rows[0]) - 2
	if width < 1 {
		return nil, errors.DataIntegrityf("%s rows need a name, a label and at least one feature", r.filePath)
	}

	ds := &cv.Dataset{
		SampleIDs:    make([]cv.SampleIndex, len(rows)),
		Names:        make([]string, len(rows)),
		Labels:       make([]int, len(rows)),
		Features:     make([][]float64, len(rows)),
		FeatureNames: featureNames(header, width),
	}
	for i, row := range rows {
		if len(row) != width+2 {
			return nil, errors.DataIntegrityf("row %d has %d cells, expected %d", i+1, len(row), width+2)
		}
		label, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || label < 0 {
			return nil, errors.DataIntegrityf("row %d: invalid class label %q", i+1, row[1])
		}
		features := make([]float64, width)
		for j := range features {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j+2]), 64)
			if err != nil {
				return nil, errors.DataIntegrityf("row %d column %d: invalid feature value %q", i+1, j+3, row[j+2])
			}
			features[j] = v
		}
		ds.SampleIDs[i] = cv.SampleIndex(i)
		ds.Names[i] = strings.TrimSpace(row[0])
		ds.Labels[i] = label
		ds.Features[i] = features
	}

	log.Printf("[SpecimenReader] %s file processed (%d features, %d specimens, %d classes)",
		strings.ToUpper(r.fileType), width, len(rows), ds.ClassCount())
	return ds, nil
}

func featureNames(header []string, width int) []string {
	names := make([]string, width)
	for j := range names {
		if j+2 < len(header) && strings.TrimSpace(header[j+2]) != "" {
			names[j] = strings.TrimSpace(header[j+2])
			continue
		}
		names[j] = fmt.Sprintf("feature_%d", j+1)
	}
	return names
}

func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}
