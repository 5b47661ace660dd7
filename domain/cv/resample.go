package cv

import (
	"fmt"
	"strings"
)

// SampleIndex identifies one specimen row of the source data table
type SampleIndex int

// ResampleKind distinguishes permutations (reshuffle) from bootstraps.
// Results of different kinds never share a sample ordering.
type ResampleKind string

const (
	Reshuffle ResampleKind = "reshuffle"
	Bootstrap ResampleKind = "bootstrap"
)

// ParseResampleKind accepts the canonical names and the study's legacy labels
func ParseResampleKind(s string) (ResampleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reshuffle", "reshuffled", "rshfl", "noreplace":
		return Reshuffle, nil
	case "bootstrap", "bootstrapped", "rsmp", "replace":
		return Bootstrap, nil
	}
	return "", fmt.Errorf("unknown resampling kind %q", s)
}

func (k ResampleKind) String() string { return string(k) }

// Permutation is the sample order used by every classifier for one
// resampling iteration of one kind
type Permutation struct {
	Kind      ResampleKind
	Iteration int
	Indices   []SampleIndex
}

// Len returns the number of positions in the permutation
func (p Permutation) Len() int { return len(p.Indices) }

// Validate checks the permutation against the size of the source table.
// Reshuffles must visit every sample exactly once; bootstraps only need
// in-range indices.
func (p Permutation) Validate(nSamples int) error {
	if len(p.Indices) != nSamples {
		return fmt.Errorf("%s iteration %d has %d indices, expected %d", p.Kind, p.Iteration, len(p.Indices), nSamples)
	}
	seen := make([]bool, nSamples)
	for pos, idx := range p.Indices {
		if int(idx) < 0 || int(idx) >= nSamples {
			return fmt.Errorf("%s iteration %d position %d: index %d out of range [0,%d)", p.Kind, p.Iteration, pos, idx, nSamples)
		}
		if p.Kind == Reshuffle {
			if seen[idx] {
				return fmt.Errorf("reshuffle iteration %d repeats index %d", p.Iteration, idx)
			}
			seen[idx] = true
		}
	}
	return nil
}
