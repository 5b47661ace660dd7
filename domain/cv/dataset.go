package cv

import "fmt"

// Dataset is a specimen feature table. Row i belongs to SampleIDs[i]; once
// permuted the rows follow the permutation order. Names is optional.
type Dataset struct {
	SampleIDs    []SampleIndex
	Names        []string
	Labels       []int
	Features     [][]float64
	FeatureNames []string
}

// Len returns the number of rows
func (d *Dataset) Len() int { return len(d.Labels) }

// Width returns the number of feature columns
func (d *Dataset) Width() int { return len(d.FeatureNames) }

// ClassCount returns max(label)+1
func (d *Dataset) ClassCount() int {
	k := 0
	for _, l := range d.Labels {
		if l+1 > k {
			k = l + 1
		}
	}
	return k
}

// Validate checks the table shape and label range
func (d *Dataset) Validate() error {
	if len(d.SampleIDs) != len(d.Labels) || len(d.Features) != len(d.Labels) {
		return fmt.Errorf("dataset has %d ids, %d labels and %d feature rows", len(d.SampleIDs), len(d.Labels), len(d.Features))
	}
	if d.Names != nil && len(d.Names) != len(d.Labels) {
		return fmt.Errorf("dataset has %d names for %d rows", len(d.Names), len(d.Labels))
	}
	for i, row := range d.Features {
		if len(row) != len(d.FeatureNames) {
			return fmt.Errorf("dataset row %d has %d features, expected %d", i, len(row), len(d.FeatureNames))
		}
		if d.Labels[i] < 0 {
			return fmt.Errorf("dataset row %d has negative label %d", i, d.Labels[i])
		}
	}
	return nil
}

// Rows returns a dataset view of rows [start, end). Slices are shared.
func (d *Dataset) Rows(start, end int) *Dataset {
	var names []string
	if d.Names != nil {
		names = d.Names[start:end]
	}
	return &Dataset{
		SampleIDs:    d.SampleIDs[start:end],
		Names:        names,
		Labels:       d.Labels[start:end],
		Features:     d.Features[start:end],
		FeatureNames: d.FeatureNames,
	}
}

// Without returns a copy of the dataset without rows [start, end)
func (d *Dataset) Without(start, end int) *Dataset {
	n := d.Len() - (end - start)
	out := &Dataset{
		SampleIDs:    make([]SampleIndex, 0, n),
		Labels:       make([]int, 0, n),
		Features:     make([][]float64, 0, n),
		FeatureNames: d.FeatureNames,
	}
	out.SampleIDs = append(append(out.SampleIDs, d.SampleIDs[:start]...), d.SampleIDs[end:]...)
	out.Labels = append(append(out.Labels, d.Labels[:start]...), d.Labels[end:]...)
	out.Features = append(append(out.Features, d.Features[:start]...), d.Features[end:]...)
	if d.Names != nil {
		out.Names = make([]string, 0, n)
		out.Names = append(append(out.Names, d.Names[:start]...), d.Names[end:]...)
	}
	return out
}
