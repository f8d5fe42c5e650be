package resample

import (
	"golang.org/x/exp/rand"
)

// Multinomial draws each new particle index independently from the
// categorical distribution defined by the particle weights, i.e. ordinary
// multinomial resampling via N independent draws on the CDF.
type Multinomial struct{}

// Resample implements Resampler.
func (Multinomial) Resample(rng *rand.Rand, logWeights []float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}

	c := cdf(logWeights)
	n := len(logWeights)
	indices := make([]int, n)
	for i := range indices {
		u := rng.Float64()
		indices[i] = searchCDF(c, u)
	}

	return indices, nil
}
