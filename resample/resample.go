// Package resample implements the six resampling strategies used by the
// particle filters: multinomial, fast multinomial (order-statistic
// spacings), residual, stratified, systematic, and Hilbert-sorted
// systematic. Every strategy shares the same contract: given a set of
// log-weights it returns the indices of the particles to keep, one index
// per surviving slot, so that particle i's new value is the old particle
// at indices[i].
package resample

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-smc/numeric"
)

// Resampler selects N new particle indices from N log-weighted particles.
type Resampler interface {
	// Resample returns len(logWeights) indices into the original
	// particle set. It returns an error if logWeights is empty.
	Resample(rng *rand.Rand, logWeights []float64) ([]int, error)
}

// Indices draws resample indices for logWeights using resampler. If
// resampler also implements PositionalResampler, x's rows (up to 3) are
// passed along as particle locations to sort on; otherwise only the
// weights are used. This is the single entry point every filter's
// periodic resample step should call, so a Hilbert resampler configured
// on a filter actually sorts on particle state instead of degrading to a
// plain systematic resample.
func Indices(rng *rand.Rand, resampler Resampler, x mat.Matrix, logWeights []float64) ([]int, error) {
	if pr, ok := resampler.(PositionalResampler); ok {
		n := len(logWeights)
		if n == 0 {
			return nil, checkWeights(logWeights)
		}
		return pr.ResamplePositions(positionsOf(x), logWeights, rng.Float64()/float64(n))
	}
	return resampler.Resample(rng, logWeights)
}

// IndicesU draws resample indices deterministically from the externally
// supplied offset u0, rather than from a *rand.Rand: if resampler is a
// PositionalResampler (Hilbert), x's rows are used as particle positions;
// if it exposes a single-offset ResampleU method (Systematic), that is
// used directly. It returns an error otherwise, since the CRN filter
// family requires every source of randomness in the filter to be
// externally supplied rather than internally drawn.
func IndicesU(resampler Resampler, x mat.Matrix, logWeights []float64, u0 float64) ([]int, error) {
	if pr, ok := resampler.(PositionalResampler); ok {
		return pr.ResamplePositions(positionsOf(x), logWeights, u0)
	}
	if ru, ok := resampler.(interface {
		ResampleU(logWeights []float64, u0 float64) ([]int, error)
	}); ok {
		return ru.ResampleU(logWeights, u0)
	}
	return nil, fmt.Errorf("resampler %T does not support an externally supplied offset", resampler)
}

// positionsOf extracts up to 3 state rows of x as per-axis coordinate
// slices, for PositionalResampler implementations to sort on.
func positionsOf(x mat.Matrix) [][]float64 {
	rows, cols := x.Dims()
	if rows > 3 {
		rows = 3
	}
	pos := make([][]float64, rows)
	for a := 0; a < rows; a++ {
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			row[c] = x.At(a, c)
		}
		pos[a] = row
	}
	return pos
}

// UniformLogWeights returns a slice of n log-weights all equal to
// log(1/n), the weight every resampler resets its particles to.
func UniformLogWeights(n int) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	u := -math.Log(float64(n))
	for i := range w {
		w[i] = u
	}
	return w
}

func checkWeights(logWeights []float64) error {
	if len(logWeights) == 0 {
		return fmt.Errorf("invalid log-weights: empty")
	}
	return nil
}

// cdf returns the normalized (to 1) cumulative distribution of logWeights
// on the linear scale, using the shift-by-max trick so it never overflows.
func cdf(logWeights []float64) []float64 {
	w, _ := numeric.ShiftExp(logWeights)
	c := make([]float64, len(w))
	sum := 0.0
	for i, v := range w {
		sum += v
		c[i] = sum
	}
	if sum > 0 {
		for i := range c {
			c[i] /= sum
		}
	}
	// guard against floating point drift so the final entry is exactly 1
	if len(c) > 0 {
		c[len(c)-1] = 1.0
	}
	return c
}

// searchCDF returns the smallest index i such that lo < u <= c[i], with
// c[-1] treated as 0. This is the corrected conjunction spec.md calls for
// in place of the original's chained-comparison bug (see DESIGN.md).
func searchCDF(c []float64, u float64) int {
	lo := 0.0
	for i, hi := range c {
		if lo < u && u <= hi {
			return i
		}
		lo = hi
	}
	return len(c) - 1
}
