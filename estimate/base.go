// Package estimate provides a basic implementation of pf.Estimate.
package estimate

import "gonum.org/v1/gonum/mat"

// Base is a basic filter estimate: a state vector with an optional
// covariance matrix.
type Base struct {
	state mat.Vector
	cov   mat.Symmetric
}

// NewBase returns a Base estimate with no explicit covariance. Cov falls
// back to the empirical outer-product covariance of state, matching the
// convention used when a filter has nothing more specific to report (e.g.
// a particle filter's weighted mean).
func NewBase(state mat.Vector) (*Base, error) {
	return &Base{state: state}, nil
}

// NewBaseWithCov returns a Base estimate carrying an explicit covariance,
// as reported by the closed-form filters.
func NewBaseWithCov(state mat.Vector, cov mat.Symmetric) (*Base, error) {
	return &Base{state: state, cov: cov}, nil
}

// State returns the state estimate.
func (b *Base) State() mat.Vector {
	return b.state
}

// Cov returns the covariance estimate. If no explicit covariance was
// supplied at construction, it is computed as the empirical outer-product
// covariance of the state vector.
func (b *Base) Cov() mat.Symmetric {
	if b.cov != nil {
		return b.cov
	}

	cov := mat.NewSymDense(b.state.Len(), nil)
	dim := cov.Symmetric()

	for r := 0; r < dim; r++ {
		for c := 0; c < dim; c++ {
			cov.SetSym(r, c, b.state.AtVec(r)*b.state.AtVec(c))
		}
	}
	if dim > 1 {
		cov.ScaleSym(1/float64(dim-1), cov)
	}

	return cov
}
