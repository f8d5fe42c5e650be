package particle

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/estimate"
	"github.com/milosgajdos/go-smc/numeric"
	"github.com/milosgajdos/go-smc/resample"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// APF is the Auxiliary Particle Filter: before propagating particles it
// pre-weights them using a characteristic point of each particle's
// one-step-ahead predictive distribution, draws a first-stage index for
// each new particle proportional to that pre-weight, propagates from the
// selected ancestor, and corrects the second-stage weight for the
// pre-weight used to pick it.
type APF struct {
	model APFModel

	x    *mat.Dense
	logW []float64
	exp  *ExpectationCache

	rng         *rand.Rand
	logCondLike float64

	started bool
}

// NewAPF creates an APF filter with n particles, drawn at the first
// Update from model's initial proposal. Any extra callbacks are
// registered alongside the filter's own state estimate in its
// expectation cache; see Expectations.
func NewAPF(model APFModel, n int, seed uint64, extra ...ExpectationCallback) (*APF, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}

	return &APF{
		model: model,
		logW:  resample.UniformLogWeights(n),
		exp:   NewExpectationCache(extra...),
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Predict is a no-op; APF's resample-then-propagate step happens inside
// Update, since the first-stage index sampling needs the observation y.
func (a *APF) Predict(x, _ mat.Vector) (pf.Estimate, error) {
	return estimate.NewBase(x)
}

// Update runs one step of the Auxiliary Particle Filter.
func (a *APF) Update(_, u, z mat.Vector) (pf.Estimate, error) {
	n := len(a.logW)

	if !a.started {
		x0, err := a.model.SampleInitial(z)
		if err != nil {
			return nil, fmt.Errorf("initial particle sample failed: %v", err)
		}
		nx := x0.Len()
		a.x = mat.NewDense(nx, n, nil)
		a.x.Slice(0, nx, 0, 1).(*mat.Dense).Copy(x0)
		a.logW[0] += a.model.LogTransition(x0, nil, u) + a.model.LogObservation(z, x0) - a.model.LogInitial(x0, z)

		for c := 1; c < n; c++ {
			xc, err := a.model.SampleInitial(z)
			if err != nil {
				return nil, fmt.Errorf("initial particle sample failed: %v", err)
			}
			a.x.Slice(0, nx, c, c+1).(*mat.Dense).Copy(xc)
			a.logW[c] += a.model.LogTransition(xc, nil, u) + a.model.LogObservation(z, xc) - a.model.LogInitial(xc, z)
		}
		a.started = true
	} else {
		if err := a.step(u, z); err != nil {
			return nil, err
		}
	}

	a.logCondLike += numeric.LogSumExp(a.logW)

	w, _ := numeric.ShiftExp(a.logW)
	numeric.Normalize(w)
	for i := range a.logW {
		a.logW[i] = math.Log(w[i])
	}

	if err := a.exp.Update(a.x, w); err != nil {
		return nil, err
	}
	xEst := a.exp.Expectation(0)

	return estimate.NewBase(xEst.ColView(0))
}

// step performs the two-stage auxiliary update: first-stage index
// sampling proportional to the characteristic-point pre-weight, then
// propagation from the chosen ancestor and a second-stage weight
// correction for having used the pre-weight as the proposal.
func (a *APF) step(u, z mat.Vector) error {
	n := len(a.logW)
	rows, _ := a.x.Dims()

	logPreW := make([]float64, n)
	for c := 0; c < n; c++ {
		mu, err := a.model.Characteristic(a.x.ColView(c), u)
		if err != nil {
			return fmt.Errorf("characteristic point computation failed: %v", err)
		}
		logPreW[c] = a.logW[c] + a.model.LogObservation(z, mu)
	}

	idx, err := resample.KGen(a.rng, logPreW, n)
	if err != nil {
		return fmt.Errorf("first-stage index sample failed: %v", err)
	}

	old := mat.DenseCopyOf(a.x)
	oldLogW := append([]float64(nil), a.logW...)

	next := mat.NewDense(rows, n, nil)
	nextLogW := make([]float64, n)

	for c, k := range idx {
		prev := old.ColView(k)
		xc, err := a.model.Sample(prev, u, z)
		if err != nil {
			return fmt.Errorf("particle sample failed: %v", err)
		}
		next.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)

		nextLogW[c] = oldLogW[k] +
			a.model.LogTransition(xc, prev, u) + a.model.LogObservation(z, xc) - a.model.LogProposal(xc, prev, u, z) -
			logPreW[k]
	}

	// first-stage factor of the step's likelihood increment; Update adds
	// the second-stage sum of nextLogW on top.
	a.logCondLike += numeric.LogSumExp(logPreW) - math.Log(float64(n))

	a.x = next
	a.logW = nextLogW
	return nil
}

// Run runs one Predict/Update cycle.
func (a *APF) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := a.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return a.Update(pred.State(), u, z)
}

// Particles returns the current particle ensemble.
func (a *APF) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(a.x)
	return p
}

// Weights returns the current normalized particle weights.
func (a *APF) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(a.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (a *APF) LogLikelihood() float64 {
	return a.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own state estimate at index 0, followed by any extra
// callbacks registered at construction) computed against the most recent
// Update.
func (a *APF) Expectations() []*mat.Dense {
	return a.exp.Expectations()
}
