package resample

import (
	"golang.org/x/exp/rand"
)

// KGen draws n indices from the categorical distribution described by
// logWeights, independently and with replacement. It is the primitive the
// Auxiliary particle filter uses to pick "k" ancestor indices from the
// first-stage weights (spec.md's k_gen): a roulette-wheel draw that works
// on log-weights directly instead of plain (non-log) weights.
func KGen(rng *rand.Rand, logWeights []float64, n int) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}

	c := cdf(logWeights)
	indices := make([]int, n)
	for i := range indices {
		u := rng.Float64()
		indices[i] = searchCDF(c, u)
	}

	return indices, nil
}
