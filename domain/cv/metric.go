package cv

// MetricRecord is the comparison outcome for one (experiment, iteration).
// Significance is the raw mid-p value against the group baseline; any
// capping for display happens in reporting.
type MetricRecord struct {
	Group             string  `json:"group" db:"group_name"`
	Experiment        string  `json:"experiment" db:"experiment"`
	Baseline          string  `json:"baseline" db:"baseline"`
	Iteration         int     `json:"iteration" db:"iteration"`
	Accuracy          float64 `json:"accuracy" db:"accuracy"`
	MutualInformation float64 `json:"mutual_information" db:"mutual_information"`
	Significance      float64 `json:"significance" db:"significance"`
	// BaselineOnly counts samples only the baseline classified correctly,
	// OtherOnly those only this experiment classified correctly.
	BaselineOnly int `json:"baseline_only" db:"baseline_only"`
	OtherOnly    int `json:"other_only" db:"other_only"`
}

// IsBaseline reports whether the record belongs to the group baseline
func (m MetricRecord) IsBaseline() bool { return m.Experiment == m.Baseline }
