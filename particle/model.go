package particle

import (
	"gonum.org/v1/gonum/mat"
)

// Transition evaluates the state transition log-density f(x_t | x_{t-1},
// u_t), the SISR family's logFEv hook. prev is nil at t=1, in which case
// LogTransition must evaluate the initial-state prior log-density p(x_1)
// instead of a transition density.
type Transition interface {
	LogTransition(x, prev, u mat.Vector) float64
}

// ObservationDensity evaluates the observation log-density g(y_t | x_t),
// the SISR family's logGEv hook.
type ObservationDensity interface {
	LogObservation(y, x mat.Vector) float64
}

// Proposal is the importance density q(x_t | x_{t-1}, y_t) a SISR-family
// particle filter samples from and evaluates, covering both the t=1
// initial proposal (q1Samp/logQ1Ev) and every subsequent step
// (qSamp/logQEv).
type Proposal interface {
	// SampleInitial draws a particle from the t=1 proposal given the
	// first observation y.
	SampleInitial(y mat.Vector) (mat.Vector, error)
	// LogInitial evaluates the t=1 proposal's log-density at x given y.
	LogInitial(x, y mat.Vector) float64
	// Sample draws a particle from the proposal given the previous
	// particle, control input u and current observation y.
	Sample(prev, u, y mat.Vector) (mat.Vector, error)
	// LogProposal evaluates the proposal's log-density at x given the
	// previous particle, control input u and current observation y.
	LogProposal(x, prev, u, y mat.Vector) float64
}

// SISRModel is the complete model a SISR-family particle filter needs.
type SISRModel interface {
	Transition
	ObservationDensity
	Proposal
}

// CRNModel is the Common Random Numbers variant of SISRModel: rather than
// drawing from an internally owned entropy source, the proposal is
// expressed as a deterministic function Xi_t(x_{t-1}, U_t, y_t) of an
// externally supplied uniform/normal vector U_t, one per particle, that
// the filter's caller provides fresh every step. This is what makes the
// filter's log-likelihood a differentiable function of model parameters
// under a fixed sequence of U_t's, which pseudo-marginal MCMC and
// particle Gibbs rely on. Density evaluation is unchanged from SISRModel.
type CRNModel interface {
	Transition
	ObservationDensity
	// SampleInitialCRN deterministically maps the externally supplied
	// vector u into a t=1 particle given observation y.
	SampleInitialCRN(y, u mat.Vector) (mat.Vector, error)
	// LogInitial evaluates the t=1 proposal's log-density at x given y.
	LogInitial(x, y mat.Vector) float64
	// SampleCRN deterministically maps the externally supplied vector u
	// into a particle given the previous particle, control input ctrl
	// and observation y.
	SampleCRN(prev, ctrl, y, u mat.Vector) (mat.Vector, error)
	// LogProposal evaluates the proposal's log-density at x given the
	// previous particle, control input ctrl and current observation y.
	LogProposal(x, prev, ctrl, y mat.Vector) float64
}

// APFModel is a SISRModel that can additionally produce a representative
// point of each particle's one-step-ahead predictive distribution, used
// to compute the Auxiliary Particle Filter's first-stage weights.
type APFModel interface {
	SISRModel
	// Characteristic returns a representative point mu(x_{t-1}, u), e.g.
	// the conditional mean E[x_t | x_{t-1}, u], used to pre-weight
	// particles before the first-stage resample.
	Characteristic(prev, u mat.Vector) (mat.Vector, error)
}
