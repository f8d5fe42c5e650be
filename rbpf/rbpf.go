// Package rbpf implements Rao-Blackwellized particle filters: composites
// that particle-filter an outer state while marginalizing a conditionally
// closed-form inner state (a discrete HMM or a linear-Gaussian Kalman
// filter) exactly, conditional on each particle's outer trajectory.
// Because the inner chain is marginalized exactly rather than sampled,
// each particle's weight increment is exactly its inner filter's one-step
// predictive log likelihood (the arbitrary-proposal variants add the outer
// prior/proposal log-density ratio to it): no separate observation-error
// density is needed, unlike the plain particle filters in package particle.
package rbpf

import (
	"fmt"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/resample"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Filter is a Rao-Blackwellized particle filter: pf.Filter plus read
// access to the outer ensemble and the accumulated log conditional
// likelihood of the observed sequence, mirroring particle.Particle.
type Filter interface {
	pf.Filter
	Particles() mat.Matrix
	Weights() mat.Vector
	LogLikelihood() float64
}

// cloner is satisfied by an inner closed-form filter that an RBPF
// composite carries one per particle. Cloning lets the joint resample
// step fork an inner filter independently across ancestors instead of
// aliasing the same pointer into multiple ensemble slots.
type cloner[T any] interface {
	Clone() T
}

// jointResample draws one set of ancestor indices from logW and applies
// it to the outer particle matrix x and the parallel slice of per-
// particle inner filters, cloning every selected inner filter so no two
// resulting slots alias the same inner filter state. It also returns the
// drawn ancestor indices so a caller tracking further per-particle state
// in its own parallel slices (e.g. RBPF-Kalman's inner mean estimates)
// can resample those the same way.
func jointResample[T cloner[T]](rng *rand.Rand, resampler resample.Resampler, x *mat.Dense, inner []T, logW []float64) (*mat.Dense, []T, []float64, []int, error) {
	idx, err := resample.Indices(rng, resampler, x, logW)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("resample failed: %v", err)
	}

	rows, _ := x.Dims()
	oldX := mat.DenseCopyOf(x)
	n := len(idx)

	newX := mat.NewDense(rows, n, nil)
	newInner := make([]T, n)
	for c, i := range idx {
		newX.Slice(0, rows, c, c+1).(*mat.Dense).Copy(oldX.ColView(i))
		newInner[c] = inner[i].Clone()
	}

	return newX, newInner, resample.UniformLogWeights(n), idx, nil
}
