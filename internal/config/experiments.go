package config

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"morphocv/domain/cv"
	"morphocv/internal/errors"
)

// experimentEntry is the YAML shape of one experiment descriptor
type experimentEntry struct {
	Key         string `yaml:"key" validate:"required"`
	Label       string `yaml:"label"`
	InputType   string `yaml:"input_type" validate:"required"`
	Resampling  string `yaml:"resampling" validate:"required"`
	Classifier  string `yaml:"classifier" validate:"required"`
	Predictions string `yaml:"predictions" validate:"required"`
	Relevance   string `yaml:"relevance"`
}

type groupEntry struct {
	Name   string              `yaml:"name" validate:"required"`
	Select map[string][]string `yaml:"select" validate:"required,min=1"`
}

type experimentsFile struct {
	Experiments []experimentEntry `yaml:"experiments" validate:"required,min=1,dive"`
	Groups      []groupEntry      `yaml:"groups" validate:"dive"`
}

// Group names a selection of comparable experiments
type Group struct {
	Name      string
	Selection cv.Selection
}

// Experiments is the validated experiment catalog and its comparison groups
type Experiments struct {
	Catalog *cv.Catalog
	Groups  []Group
}

// Group returns the named group
func (e *Experiments) Group(name string) (Group, bool) {
	for _, g := range e.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// LoadExperiments reads and validates the YAML experiment catalog at path
func LoadExperiments(path string) (*Experiments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	exps, err := ParseExperiments(data)
	if err != nil {
		return nil, errors.Wrapf(err, "experiment catalog %s", path)
	}
	return exps, nil
}

// ParseExperiments decodes and validates a YAML experiment catalog
func ParseExperiments(data []byte) (*Experiments, error) {
	var raw experimentsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.ConfigInvalidf("decode experiment catalog: %v", err)
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, errors.ConfigInvalid(describeValidation(err))
	}

	descriptors := make([]cv.ExperimentDescriptor, 0, len(raw.Experiments))
	for _, e := range raw.Experiments {
		kind, err := cv.ParseResampleKind(e.Resampling)
		if err != nil {
			return nil, errors.ConfigInvalidf("experiment %s: %v", e.Key, err)
		}
		family, err := cv.ParseClassifierFamily(e.Classifier)
		if err != nil {
			return nil, errors.ConfigInvalidf("experiment %s: %v", e.Key, err)
		}
		d, err := cv.NewExperimentDescriptor(cv.ExperimentSpec{
			Key:              e.Key,
			Label:            e.Label,
			InputType:        e.InputType,
			Resampling:       kind,
			Classifier:       family,
			PredPattern:      e.Predictions,
			RelevancePattern: e.Relevance,
		})
		if err != nil {
			return nil, errors.ConfigInvalid(err.Error())
		}
		descriptors = append(descriptors, d)
	}

	catalog, err := cv.NewCatalog(descriptors)
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}

	exps := &Experiments{Catalog: catalog}
	seen := make(map[string]bool, len(raw.Groups))
	for _, g := range raw.Groups {
		if seen[g.Name] {
			return nil, errors.ConfigInvalidf("duplicate group %q", g.Name)
		}
		seen[g.Name] = true
		sel := cv.Selection(g.Select)
		// reject unknown attributes up front rather than at comparison time
		if _, err := catalog.Select(sel); err != nil {
			return nil, errors.ConfigInvalidf("group %s: %v", g.Name, err)
		}
		exps.Groups = append(exps.Groups, Group{Name: g.Name, Selection: sel})
	}
	return exps, nil
}
