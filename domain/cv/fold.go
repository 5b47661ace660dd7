package cv

// Fold is the half-open test range [Start, End) into a permutation.
// Everything outside the range is training data for that fold.
type Fold struct {
	Index int
	Start int
	End   int
}

// Size returns the number of test positions in the fold
func (f Fold) Size() int { return f.End - f.Start }

// Contains reports whether position pos of the permutation is a test position
func (f Fold) Contains(pos int) bool { return pos >= f.Start && pos < f.End }

// OneBasedInclusive converts the range into the 1-based inclusive
// "from:to" form used by the sampler's numin data specifications
func (f Fold) OneBasedInclusive() (from, to int) {
	return f.Start + 1, f.End
}
