package cv

import "fmt"

// RelevanceTable holds non-negative feature importance scores. Depending on
// the stage a row is a class, a fold or an iteration.
type RelevanceTable struct {
	Columns []string
	Rows    [][]float64
}

// ARDColumns returns ard_0..ard_{n-1}
func ARDColumns(n int) []string {
	return prefixedColumns("ard_", n)
}

// HMCRelevanceColumns returns the combined, non-linear and linear ARD
// column blocks written for the HMC-MLP path
func HMCRelevanceColumns(n int) []string {
	cols := make([]string, 0, 3*n)
	cols = append(cols, prefixedColumns("ard_", n)...)
	cols = append(cols, prefixedColumns("nonlin_ard_", n)...)
	cols = append(cols, prefixedColumns("lin_ard_", n)...)
	return cols
}

func prefixedColumns(prefix string, n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return cols
}

// Width returns the number of columns
func (t *RelevanceTable) Width() int { return len(t.Columns) }

// Validate checks the table is rectangular and scores are non-negative
func (t *RelevanceTable) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("relevance row %d has %d values for %d columns", i, len(row), len(t.Columns))
		}
		for j, v := range row {
			if v < 0 || v != v {
				return fmt.Errorf("relevance row %d column %s: invalid score %v", i, t.Columns[j], v)
			}
		}
	}
	return nil
}
