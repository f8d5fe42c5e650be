// Package pf defines the core interfaces shared by every filter in this
// module: the closed-form Kalman/HMM/Gamma filters, the particle filters,
// and the Rao-Blackwellized composites.
package pf

import "gonum.org/v1/gonum/mat"

// Estimate is the result of one Predict/Update/Run step of any filter in
// this module.
type Estimate interface {
	// State returns the (possibly weighted) state estimate.
	State() mat.Vector
	// Cov returns the covariance of the state estimate.
	Cov() mat.Symmetric
}

// Noise is a process or measurement noise source.
type Noise interface {
	// Sample draws one noise vector.
	Sample() mat.Vector
	// Cov returns the noise covariance.
	Cov() mat.Symmetric
	// Mean returns the noise mean.
	Mean() []float64
	// Reset reseeds/reinitializes the noise source.
	Reset() error
}

// InitCond is a filter's initial state distribution.
type InitCond interface {
	// State returns the initial mean state.
	State() mat.Vector
	// Cov returns the initial state covariance.
	Cov() mat.Symmetric
}

// Propagator propagates internal system state to the next time step given
// the current state, control input and a process noise sample.
type Propagator interface {
	Propagate(x, u, q mat.Vector) (mat.Vector, error)
}

// Observer observes the external/output state of the system given internal
// state, control input and a measurement noise sample.
type Observer interface {
	Observe(x, u, r mat.Vector) (mat.Vector, error)
}

// Model is a discrete-time model of a dynamical system.
type Model interface {
	Propagator
	Observer
	// Dims returns input and output dimensions of the model.
	Dims() (in, out int)
}

// DiscreteModel is a Model that additionally reports the full set of
// dimensions (state, input, output, disturbance) used by the closed-form
// filters.
type DiscreteModel interface {
	Propagator
	Observer
	SystemDims() (nx, nu, ny, nz int)
}

// DiscreteControlSystem is a DiscreteModel expressed with the matrices of
// classical linear control theory: state matrix A, control matrix B,
// output matrix C and feedthrough matrix D.
type DiscreteControlSystem interface {
	DiscreteModel
	SystemMatrix() mat.Matrix
	ControlMatrix() mat.Matrix
	OutputMatrix() mat.Matrix
	FeedForwardMatrix() mat.Matrix
}

// Filter is a recursive state estimator: Predict propagates the state one
// step ahead, Update corrects it against a measurement, and Run performs
// both in sequence.
type Filter interface {
	Predict(x, u mat.Vector) (Estimate, error)
	Update(x, u, z mat.Vector) (Estimate, error)
	Run(x, u, z mat.Vector) (Estimate, error)
}
