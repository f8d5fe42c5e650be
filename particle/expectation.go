package particle

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// WeightedExpectation computes the weighted average of fn applied to
// every particle column of x with the corresponding normalized weight in
// w. Its accumulator is sized lazily from the shape fn returns for
// particle 0, mirroring the original filter's m_expectations cache, which
// is resized the first time a callback runs rather than fixed at
// construction.
func WeightedExpectation(x *mat.Dense, w []float64, fn func(mat.Vector) *mat.Dense) (*mat.Dense, error) {
	_, n := x.Dims()
	if n != len(w) {
		return nil, fmt.Errorf("particle/weight count mismatch: %d != %d", n, len(w))
	}
	if n == 0 {
		return nil, fmt.Errorf("empty particle ensemble")
	}

	first := fn(x.ColView(0))
	rows, cols := first.Dims()
	acc := mat.NewDense(rows, cols, nil)

	scaled := mat.NewDense(rows, cols, nil)
	scaled.Scale(w[0], first)
	acc.Add(acc, scaled)

	for i := 1; i < n; i++ {
		v := fn(x.ColView(i))
		scaled.Scale(w[i], v)
		acc.Add(acc, scaled)
	}

	return acc, nil
}

// ExpectationCallback computes a state functional h_k(x) to be averaged
// against a particle ensemble's normalized weights.
type ExpectationCallback func(mat.Vector) *mat.Dense

// IdentityExpectation is the default callback every filter used before it
// could accept others: it returns the particle unchanged, so its weighted
// average is simply the ensemble's weighted mean state.
func IdentityExpectation(v mat.Vector) *mat.Dense {
	return mat.DenseCopyOf(v)
}

// ExpectationCache evaluates and caches the weighted average of zero or
// more registered callbacks against a particle ensemble, mirroring the
// original filter's m_expectations cache: each callback's accumulator is
// sized lazily from the shape it returns the first time it runs, not
// fixed up front. Callback 0 is always the filter's own state estimate;
// any callbacks past that are the caller's additional registered
// functionals, retrieved via Expectation/Expectations after every Update.
type ExpectationCache struct {
	fns    []ExpectationCallback
	values []*mat.Dense
}

// NewExpectationCache creates a cache whose callback 0 is the identity
// (the filter's own state estimate) followed by any extra callbacks the
// caller registered at construction time.
func NewExpectationCache(extra ...ExpectationCallback) *ExpectationCache {
	fns := make([]ExpectationCallback, 0, len(extra)+1)
	fns = append(fns, IdentityExpectation)
	fns = append(fns, extra...)
	return &ExpectationCache{fns: fns, values: make([]*mat.Dense, len(fns))}
}

// Update recomputes every registered callback's weighted expectation
// against ensemble x and normalized weights w.
func (c *ExpectationCache) Update(x *mat.Dense, w []float64) error {
	for i, fn := range c.fns {
		v, err := WeightedExpectation(x, w, fn)
		if err != nil {
			return fmt.Errorf("expectation callback %d failed: %v", i, err)
		}
		c.values[i] = v
	}
	return nil
}

// Expectation returns the k-th callback's most recently computed weighted
// expectation; k=0 is always the filter's own state estimate.
func (c *ExpectationCache) Expectation(k int) *mat.Dense {
	return c.values[k]
}

// Expectations returns every registered callback's most recently computed
// weighted expectation, in registration order.
func (c *ExpectationCache) Expectations() []*mat.Dense {
	out := make([]*mat.Dense, len(c.values))
	copy(out, c.values)
	return out
}

// Len returns the number of registered callbacks, including the implicit
// identity callback at index 0.
func (c *ExpectationCache) Len() int {
	return len(c.fns)
}
