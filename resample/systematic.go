package resample

import (
	"golang.org/x/exp/rand"
)

// Systematic resampling draws a single uniform offset u0 in [0, 1/N) and
// reuses it across all N equally spaced strata, which minimizes the
// variance of the resulting sample at the cost of perfectly correlating
// the draws across strata.
type Systematic struct{}

// Resample implements Resampler, drawing its own offset.
func (s Systematic) Resample(rng *rand.Rand, logWeights []float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}
	n := len(logWeights)
	return s.ResampleU(logWeights, rng.Float64()/float64(n))
}

// ResampleU resamples using an externally supplied offset u0, which must
// lie in [0, 1/N). This is the entry point the Hilbert resampler uses so
// that a single draw determines every stratum, and the one tests use to
// exercise the resampler deterministically.
func (Systematic) ResampleU(logWeights []float64, u0 float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}

	c := cdf(logWeights)
	n := len(logWeights)
	indices := make([]int, n)

	width := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		u := u0 + float64(i)*width
		indices[i] = searchCDF(c, u)
	}

	return indices, nil
}
