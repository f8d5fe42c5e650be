package resample

import (
	"math"

	"golang.org/x/exp/rand"
)

// FastMultinomial draws the same categorical distribution as Multinomial,
// but in O(N) instead of O(N log N): it generates N sorted uniform order
// statistics via the exponential-spacings trick (N+1 Exp(1) draws,
// cumulative-summed and normalized) instead of N independent uniforms
// each requiring its own binary search.
//
// The original C++ resampler this is ported from
// (mn_resamp_fast1::unNormWts) walks the CDF with the chained comparison
//
//	one_less_summand < uniform_order_stat <= running_sum_normalized_weights
//
// which C++ parses as (one_less_summand < uniform_order_stat) <=
// running_sum_normalized_weights -- the left side is a bool, so every
// draw resolves against index 0 or 1 regardless of the weights. This port
// uses the conjunction the authors clearly intended,
// one_less_summand < uniform_order_stat && uniform_order_stat <=
// running_sum_normalized_weights, via the shared searchCDF helper.
type FastMultinomial struct{}

// Resample implements Resampler.
func (FastMultinomial) Resample(rng *rand.Rand, logWeights []float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}

	c := cdf(logWeights)
	n := len(logWeights)

	// N+1 Exp(1) spacings; the first n cumulative sums, normalized by the
	// total of all n+1, are n sorted Uniform(0,1) order statistics.
	e := make([]float64, n+1)
	total := 0.0
	for i := range e {
		e[i] = -math.Log(rng.Float64())
		total += e[i]
	}

	u := make([]float64, n)
	cum := 0.0
	for i := 0; i < n; i++ {
		cum += e[i]
		u[i] = cum / total
	}

	indices := make([]int, n)
	j := 0
	lo := 0.0
	for i := 0; i < n; i++ {
		for j < len(c)-1 && !(lo < u[i] && u[i] <= c[j]) {
			lo = c[j]
			j++
		}
		indices[i] = j
	}

	return indices, nil
}
