// Package model provides a generic linear-Gaussian dynamical system,
// used as the test model backing the Kalman filter and as one of the
// fixtures driving the particle filters.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// InitCond implements pf.InitCond.
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it.
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.Symmetric(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// State returns the initial state.
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CopyVec(c.state)

	return state
}

// Cov returns the initial covariance.
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.Symmetric(), nil)
	cov.CopySym(c.cov)

	return cov
}

// Base is a linear-Gaussian model of a dynamical system:
//
//	x_{t+1} = A*x_t + B*u_t + q_t
//	y_t     = C*x_t + D*u_t + r_t
//
// It implements pf.DiscreteControlSystem.
type Base struct {
	// A is the state propagation matrix
	A *mat.Dense
	// B is the control matrix
	B *mat.Dense
	// C is the output matrix
	C *mat.Dense
	// D is the feedthrough matrix
	D *mat.Dense
}

// NewBase creates a new linear model and returns it.
func NewBase(A, B, C, D *mat.Dense) (*Base, error) {
	return &Base{A: A, B: B, C: C, D: D}, nil
}

// Propagate propagates internal state x to the next step given input u and
// process noise sample q.
func (b *Base) Propagate(x, u, q mat.Vector) (mat.Vector, error) {
	in, out := b.Dims()
	if u.Len() != out {
		return nil, fmt.Errorf("invalid input vector")
	}

	if x.Len() != in {
		return nil, fmt.Errorf("invalid state vector")
	}

	res := new(mat.Dense)
	res.Mul(b.A, x)

	ctl := new(mat.Dense)
	ctl.Mul(b.B, u)

	res.Add(res, ctl)

	if q != nil && q.Len() == in {
		res.Add(res, q)
	}

	return res.ColView(0), nil
}

// Observe observes the external state given internal state x, input u and
// measurement noise sample r.
func (b *Base) Observe(x, u, r mat.Vector) (mat.Vector, error) {
	in, out := b.Dims()
	if u.Len() != out {
		return nil, fmt.Errorf("invalid input vector")
	}

	if x.Len() != in {
		return nil, fmt.Errorf("invalid state vector")
	}

	res := new(mat.Dense)
	res.Mul(b.C, x)

	ctl := new(mat.Dense)
	ctl.Mul(b.D, u)

	res.Add(res, ctl)

	ny, _ := b.C.Dims()
	if r != nil && r.Len() == ny {
		res.Add(res, r)
	}

	return res.ColView(0), nil
}

// Dims returns input and output model dimensions.
func (b *Base) Dims() (in, out int) {
	_, in = b.A.Dims()
	out, _ = b.D.Dims()

	return in, out
}

// SystemDims returns state (nx), input (nu), output (ny) and disturbance
// (nz, unused by this model) dimensions.
func (b *Base) SystemDims() (nx, nu, ny, nz int) {
	nx, _ = b.A.Dims()
	_, nu = b.B.Dims()
	ny, _ = b.C.Dims()

	return nx, nu, ny, 0
}

// SystemMatrix returns the state propagation matrix A.
func (b *Base) SystemMatrix() mat.Matrix {
	return b.A
}

// ControlMatrix returns the control matrix B.
func (b *Base) ControlMatrix() mat.Matrix {
	return b.B
}

// OutputMatrix returns the output matrix C.
func (b *Base) OutputMatrix() mat.Matrix {
	return b.C
}

// FeedForwardMatrix returns the feedthrough matrix D.
func (b *Base) FeedForwardMatrix() mat.Matrix {
	return b.D
}
