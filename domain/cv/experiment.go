package cv

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ClassifierFamily names the black-box classifier behind an experiment
type ClassifierFamily string

const (
	FamilyGPC    ClassifierFamily = "GPC"
	FamilyHMCMLP ClassifierFamily = "HMC-MLP"
	FamilyCNN    ClassifierFamily = "CNN"
)

// ParseClassifierFamily accepts family names case-insensitively
func ParseClassifierFamily(s string) (ClassifierFamily, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GPC":
		return FamilyGPC, nil
	case "HMC-MLP", "HMC", "MLP":
		return FamilyHMCMLP, nil
	case "CNN":
		return FamilyCNN, nil
	}
	return "", fmt.Errorf("unknown classifier family %q", s)
}

// IterationPlaceholder is substituted with the iteration id in file patterns
const IterationPlaceholder = "{iter}"

// ExperimentDescriptor is the static description of one experiment. Values
// are built once by NewExperimentDescriptor and only read afterwards.
type ExperimentDescriptor struct {
	key              string
	label            string
	inputType        string
	resampling       ResampleKind
	classifier       ClassifierFamily
	predPattern      string
	relevancePattern string
}

// ExperimentSpec carries the raw fields for NewExperimentDescriptor
type ExperimentSpec struct {
	Key              string
	Label            string
	InputType        string
	Resampling       ResampleKind
	Classifier       ClassifierFamily
	PredPattern      string
	RelevancePattern string
}

// NewExperimentDescriptor validates spec and returns the descriptor
func NewExperimentDescriptor(spec ExperimentSpec) (ExperimentDescriptor, error) {
	if strings.TrimSpace(spec.Key) == "" {
		return ExperimentDescriptor{}, fmt.Errorf("experiment key is empty")
	}
	if spec.Resampling != Reshuffle && spec.Resampling != Bootstrap {
		return ExperimentDescriptor{}, fmt.Errorf("experiment %s: invalid resampling %q", spec.Key, spec.Resampling)
	}
	if !strings.Contains(spec.PredPattern, IterationPlaceholder) {
		return ExperimentDescriptor{}, fmt.Errorf("experiment %s: prediction pattern %q lacks %s", spec.Key, spec.PredPattern, IterationPlaceholder)
	}
	if spec.RelevancePattern != "" && !strings.Contains(spec.RelevancePattern, IterationPlaceholder) {
		return ExperimentDescriptor{}, fmt.Errorf("experiment %s: relevance pattern %q lacks %s", spec.Key, spec.RelevancePattern, IterationPlaceholder)
	}
	if spec.Classifier == FamilyCNN && spec.RelevancePattern != "" {
		return ExperimentDescriptor{}, fmt.Errorf("experiment %s: CNN experiments have no relevance output", spec.Key)
	}
	label := spec.Label
	if label == "" {
		label = spec.Key
	}
	return ExperimentDescriptor{
		key:              spec.Key,
		label:            label,
		inputType:        spec.InputType,
		resampling:       spec.Resampling,
		classifier:       spec.Classifier,
		predPattern:      spec.PredPattern,
		relevancePattern: spec.RelevancePattern,
	}, nil
}

func (d ExperimentDescriptor) Key() string                  { return d.key }
func (d ExperimentDescriptor) Label() string                { return d.label }
func (d ExperimentDescriptor) InputType() string            { return d.inputType }
func (d ExperimentDescriptor) Resampling() ResampleKind     { return d.resampling }
func (d ExperimentDescriptor) Classifier() ClassifierFamily { return d.classifier }

// HasRelevance reports whether the classifier produces feature relevance
func (d ExperimentDescriptor) HasRelevance() bool { return d.relevancePattern != "" }

// PredictionFile returns the canonical prediction file name for an iteration
func (d ExperimentDescriptor) PredictionFile(iteration int) string {
	return strings.ReplaceAll(d.predPattern, IterationPlaceholder, strconv.Itoa(iteration))
}

// RelevanceFile returns the per-iteration relevance file name, or "" when
// the classifier has no relevance output
func (d ExperimentDescriptor) RelevanceFile(iteration int) string {
	if d.relevancePattern == "" {
		return ""
	}
	return strings.ReplaceAll(d.relevancePattern, IterationPlaceholder, strconv.Itoa(iteration))
}

// FoldClassRelevanceFile names the per-class relevance rows of one fold
func (d ExperimentDescriptor) FoldClassRelevanceFile(iteration, fold int) string {
	return fmt.Sprintf("%s_it%d_fold%d_class_relevance.csv", d.key, iteration, fold)
}

// PopulationRelevanceFile names the per-class relevance table of an iteration
func (d ExperimentDescriptor) PopulationRelevanceFile(iteration int) string {
	return fmt.Sprintf("%s_it%d_population_relevance.csv", d.key, iteration)
}

// RelevanceSumFile names the iterations x features relevance table
func (d ExperimentDescriptor) RelevanceSumFile() string {
	return fmt.Sprintf("%s_relevance_sum.csv", d.key)
}

// RelevanceMeanFile names the single-row experiment relevance table
func (d ExperimentDescriptor) RelevanceMeanFile() string {
	return fmt.Sprintf("%s_relevance_mean.csv", d.key)
}

// Attribute returns a descriptor field by its catalog selection name
func (d ExperimentDescriptor) Attribute(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "key", "acronym":
		return d.key, true
	case "inputtype", "input_type":
		return d.inputType, true
	case "resampling":
		return string(d.resampling), true
	case "classifier":
		return string(d.classifier), true
	}
	return "", false
}

// Selection filters a catalog: every attribute must match one of its values
type Selection map[string][]string

// Catalog is the ordered, validated list of experiment descriptors
type Catalog struct {
	descriptors []ExperimentDescriptor
	index       map[string]int
}

// NewCatalog rejects duplicate keys and keeps declaration order
func NewCatalog(descriptors []ExperimentDescriptor) (*Catalog, error) {
	c := &Catalog{
		descriptors: make([]ExperimentDescriptor, len(descriptors)),
		index:       make(map[string]int, len(descriptors)),
	}
	copy(c.descriptors, descriptors)
	for i, d := range c.descriptors {
		if _, dup := c.index[d.key]; dup {
			return nil, fmt.Errorf("duplicate experiment key %q", d.key)
		}
		c.index[d.key] = i
	}
	return c, nil
}

// All returns the descriptors in declaration order
func (c *Catalog) All() []ExperimentDescriptor {
	out := make([]ExperimentDescriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// Lookup finds a descriptor by key
func (c *Catalog) Lookup(key string) (ExperimentDescriptor, bool) {
	i, ok := c.index[key]
	if !ok {
		return ExperimentDescriptor{}, false
	}
	return c.descriptors[i], true
}

// Select returns the descriptors matching sel, in declaration order
func (c *Catalog) Select(sel Selection) ([]ExperimentDescriptor, error) {
	var out []ExperimentDescriptor
	for _, d := range c.descriptors {
		match, err := sel.Matches(d)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, d)
		}
	}
	return out, nil
}

// Matches reports whether d satisfies every attribute of the selection
func (s Selection) Matches(d ExperimentDescriptor) (bool, error) {
	attrs := make([]string, 0, len(s))
	for attr := range s {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	for _, attr := range attrs {
		value, ok := d.Attribute(attr)
		if !ok {
			return false, fmt.Errorf("unknown selection attribute %q", attr)
		}
		if !containsFold(s[attr], value) {
			return false, nil
		}
	}
	return true, nil
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
