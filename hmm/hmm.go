// Package hmm implements a discrete-state Hidden Markov Model filter
// operating entirely in log-probability space, for numerical stability
// when state counts are large or observations are long.
package hmm

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/numeric"
	"gonum.org/v1/gonum/mat"
)

// ObservationModel evaluates the log-probability of observing y while the
// hidden chain is in the given discrete state.
type ObservationModel interface {
	LogProb(state int, y mat.Vector) float64
}

// Filter is a discrete HMM filter. It tracks the log posterior
// distribution over a fixed number of hidden states and the running log
// conditional likelihood of the observed sequence.
type Filter struct {
	logInit  []float64
	logTrans [][]float64
	obs      ObservationModel

	logFiltered []float64
	logCondLike float64
	started     bool
}

const probTol = 1e-9

// New constructs a discrete HMM filter. init is the initial state
// distribution, trans[i][j] is the transition probability from state i to
// state j, and obs evaluates the observation density for each state. It
// returns an error if init or any row of trans does not define a valid
// probability distribution.
func New(init []float64, trans [][]float64, obs ObservationModel) (*Filter, error) {
	n := len(init)
	if n == 0 {
		return nil, fmt.Errorf("invalid initial distribution: empty")
	}

	sum := 0.0
	for _, p := range init {
		if p > 1.0 {
			return nil, fmt.Errorf("initial probabilities cannot be greater than 1.0")
		}
		sum += p
	}
	if math.Abs(sum-1.0) > probTol {
		return nil, fmt.Errorf("initial probabilities must sum to 1")
	}

	if len(trans) != n {
		return nil, fmt.Errorf("invalid transition matrix: expected %d rows, got %d", n, len(trans))
	}

	logTrans := make([][]float64, n)
	for i, row := range trans {
		if len(row) != n {
			return nil, fmt.Errorf("invalid transition matrix: row %d has %d columns, expected %d", i, len(row), n)
		}
		rowSum := 0.0
		logRow := make([]float64, n)
		for j, p := range row {
			if p > 1.0 {
				return nil, fmt.Errorf("initial transition probabilities cannot be greater than 1")
			}
			rowSum += p
			logRow[j] = math.Log(p)
		}
		if math.Abs(rowSum-1.0) > probTol {
			return nil, fmt.Errorf("initial transition probabilities must sum to 1")
		}
		logTrans[i] = logRow
	}

	logInit := make([]float64, n)
	for i, p := range init {
		logInit[i] = math.Log(p)
	}

	return &Filter{
		logInit:     logInit,
		logTrans:    logTrans,
		obs:         obs,
		logFiltered: make([]float64, n),
	}, nil
}

// Update advances the filter by one observation y and returns the
// posterior state distribution as the estimate's State(). It returns an
// error if y is rejected by the observation model in a way that leaves
// every state's joint probability at -Inf after the first observation
// (i.e. the observation is incompatible with every possible state).
func (f *Filter) Update(y mat.Vector) (pf.Estimate, error) {
	return f.step(y, f.obs)
}

// UpdateWithObs advances the filter by one observation y using obs in
// place of the filter's own observation model for this step only. It is
// used by Rao-Blackwellized composites whose emission density is
// conditioned on a particle-filtered outer state that varies every step.
func (f *Filter) UpdateWithObs(y mat.Vector, obs ObservationModel) (pf.Estimate, error) {
	return f.step(y, obs)
}

func (f *Filter) step(y mat.Vector, obs ObservationModel) (pf.Estimate, error) {
	n := len(f.logInit)
	logJoint := make([]float64, n)

	if !f.started {
		for j := 0; j < n; j++ {
			logJoint[j] = f.logInit[j] + obs.LogProb(j, y)
		}
		f.started = true
	} else {
		logPred := make([]float64, n)
		for j := 0; j < n; j++ {
			terms := make([]float64, n)
			for i := 0; i < n; i++ {
				terms[i] = f.logFiltered[i] + f.logTrans[i][j]
			}
			logPred[j] = numeric.LogSumExp(terms)
		}
		for j := 0; j < n; j++ {
			logJoint[j] = logPred[j] + obs.LogProb(j, y)
		}
	}

	stepLogLike := numeric.LogSumExp(logJoint)
	if math.IsInf(stepLogLike, -1) {
		return nil, fmt.Errorf("observation incompatible with every hidden state")
	}

	for j := 0; j < n; j++ {
		f.logFiltered[j] = logJoint[j] - stepLogLike
	}
	f.logCondLike += stepLogLike

	return newEstimate(f.logFiltered), nil
}

// Clone returns a deep copy of the filter's mutable state, sharing the
// immutable model parameters (init/trans/obs). It is used by Rao-
// Blackwellized particle filters, which carry one inner Filter per
// particle and must fork it independently across ancestors on resample.
func (f *Filter) Clone() *Filter {
	logFiltered := make([]float64, len(f.logFiltered))
	copy(logFiltered, f.logFiltered)

	return &Filter{
		logInit:     f.logInit,
		logTrans:    f.logTrans,
		obs:         f.obs,
		logFiltered: logFiltered,
		logCondLike: f.logCondLike,
		started:     f.started,
	}
}

// Posterior returns the current filtered distribution over hidden states
// on the probability scale.
func (f *Filter) Posterior() []float64 {
	p := make([]float64, len(f.logFiltered))
	for i, lp := range f.logFiltered {
		p[i] = math.Exp(lp)
	}
	return p
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (f *Filter) LogLikelihood() float64 {
	return f.logCondLike
}

// estimate adapts a discrete posterior to pf.Estimate. Cov is a zero
// matrix: covariance isn't a meaningful concept for a categorical
// posterior, but every filter in this module implements pf.Estimate the
// same way so callers can treat them uniformly.
type estimate struct {
	state mat.Vector
}

func newEstimate(logFiltered []float64) *estimate {
	p := make([]float64, len(logFiltered))
	for i, lp := range logFiltered {
		p[i] = math.Exp(lp)
	}
	return &estimate{state: mat.NewVecDense(len(p), p)}
}

func (e *estimate) State() mat.Vector {
	return e.state
}

func (e *estimate) Cov() mat.Symmetric {
	return mat.NewSymDense(e.state.Len(), nil)
}
