package resample

import (
	"golang.org/x/exp/rand"
)

// Stratified resampling divides [0,1) into N equal strata and draws one
// independent uniform variate within each stratum, reducing the variance
// of plain multinomial resampling while keeping the draws independent
// across strata.
type Stratified struct{}

// Resample implements Resampler.
func (Stratified) Resample(rng *rand.Rand, logWeights []float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}

	c := cdf(logWeights)
	n := len(logWeights)
	indices := make([]int, n)

	width := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		u := (float64(i) + rng.Float64()) * width
		indices[i] = searchCDF(c, u)
	}

	return indices, nil
}
