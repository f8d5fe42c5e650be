package resample

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/milosgajdos/go-smc/numeric"
)

// Residual resampling takes floor(N*w_i) deterministic copies of each
// particle i, then fills the remaining slots with a multinomial draw over
// the residual weights N*w_i - floor(N*w_i). It has strictly lower
// variance than plain multinomial resampling for the same N.
type Residual struct{}

// Resample implements Resampler.
func (Residual) Resample(rng *rand.Rand, logWeights []float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}

	w, _ := numeric.ShiftExp(logWeights)
	numeric.Normalize(w)
	n := len(w)

	indices := make([]int, 0, n)
	residual := make([]float64, n)
	for i, wi := range w {
		nw := float64(n) * wi
		copies := int(math.Floor(nw))
		for k := 0; k < copies; k++ {
			indices = append(indices, i)
		}
		residual[i] = nw - float64(copies)
	}

	remaining := n - len(indices)
	if remaining > 0 {
		rsum := 0.0
		for _, r := range residual {
			rsum += r
		}
		c := make([]float64, n)
		cum := 0.0
		for i, r := range residual {
			if rsum > 0 {
				cum += r / rsum
			} else {
				cum += 1.0 / float64(n)
			}
			c[i] = cum
		}
		c[n-1] = 1.0

		for k := 0; k < remaining; k++ {
			u := rng.Float64()
			indices = append(indices, searchCDF(c, u))
		}
	}

	return indices, nil
}
