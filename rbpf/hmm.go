package rbpf

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/estimate"
	"github.com/milosgajdos/go-smc/hmm"
	"github.com/milosgajdos/go-smc/numeric"
	"github.com/milosgajdos/go-smc/particle"
	"github.com/milosgajdos/go-smc/resample"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// HMMOuterModel is the outer, particle-filtered half of a Rao-
// Blackwellized HMM composite: a bootstrap proposal for the outer state,
// plus a hook that builds the inner discrete HMM's observation model
// conditioned on the current outer particle.
type HMMOuterModel interface {
	// Propagate draws the next outer particle given the previous one,
	// control input u, and process noise sample q.
	Propagate(prev, u, q mat.Vector) (mat.Vector, error)
	// Observation builds the inner HMM's observation model for outer
	// particle x, re-evaluated fresh every step since x varies per
	// particle and per time step.
	Observation(x mat.Vector) hmm.ObservationModel
}

// HMM is a Rao-Blackwellized particle filter pairing a particle-filtered
// continuous outer state with an exact discrete HMM filter per particle.
type HMM struct {
	outer HMMOuterModel
	q     pf.Noise

	x     *mat.Dense
	inner []*hmm.Filter
	logW  []float64
	exp   *particle.ExpectationCache

	resampler    resample.Resampler
	resampPeriod int
	t            int
	rng          *rand.Rand
	logCondLike  float64
}

// NewHMM creates a RBPF-HMM composite with n particles, each a copy of
// ic's state and given a fresh inner filter from newInner (the init/trans of
// which must not depend on the per-particle outer state -- only the
// emission, built fresh via HMMOuterModel.Observation each step, may).
// Any extra callbacks are registered alongside the filter's own outer
// state estimate in its expectation cache; see Expectations.
func NewHMM(outer HMMOuterModel, q pf.Noise, ic pf.InitCond, newInner func(x0 mat.Vector) (*hmm.Filter, error), n int, resampler resample.Resampler, resampPeriod int, seed uint64, extra ...particle.ExpectationCallback) (*HMM, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	x := mat.NewDense(ic.State().Len(), n, nil)
	inner := make([]*hmm.Filter, n)
	for c := 0; c < n; c++ {
		col := mat.VecDenseCopyOf(ic.State())
		x.Slice(0, col.Len(), c, c+1).(*mat.Dense).Copy(col)

		f, err := newInner(col)
		if err != nil {
			return nil, fmt.Errorf("inner filter construction failed: %v", err)
		}
		inner[c] = f
	}

	return &HMM{
		outer:        outer,
		q:            q,
		x:            x,
		inner:        inner,
		logW:         resample.UniformLogWeights(n),
		exp:          particle.NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Predict propagates the external state estimate x and every outer
// particle one step ahead.
func (h *HMM) Predict(x, u mat.Vector) (pf.Estimate, error) {
	xNext, err := h.outer.Propagate(x, u, h.q.Sample())
	if err != nil {
		return nil, fmt.Errorf("state propagation failed: %v", err)
	}

	rows, cols := h.x.Dims()
	next := mat.NewDense(rows, cols, nil)
	for c := 0; c < cols; c++ {
		xc, err := h.outer.Propagate(h.x.ColView(c), u, h.q.Sample())
		if err != nil {
			return nil, fmt.Errorf("outer particle propagation failed: %v", err)
		}
		next.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)
	}
	h.x.Copy(next)

	return estimate.NewBase(xNext)
}

// Update conditions every particle's inner HMM filter on measurement z,
// sets the particle's weight increment to the resulting predictive log
// likelihood delta, and resamples (outer particles and inner filters
// jointly) if the configured period has elapsed.
func (h *HMM) Update(_, _, z mat.Vector) (pf.Estimate, error) {
	n := len(h.logW)

	for c := 0; c < n; c++ {
		before := h.inner[c].LogLikelihood()
		obs := h.outer.Observation(h.x.ColView(c))
		if _, err := h.inner[c].UpdateWithObs(z, obs); err != nil {
			return nil, fmt.Errorf("inner filter update failed: %v", err)
		}
		h.logW[c] += h.inner[c].LogLikelihood() - before
	}

	h.logCondLike += numeric.LogSumExp(h.logW)

	w, _ := numeric.ShiftExp(h.logW)
	numeric.Normalize(w)
	for i := range h.logW {
		h.logW[i] = math.Log(w[i])
	}

	if err := h.exp.Update(h.x, w); err != nil {
		return nil, err
	}
	xEst := h.exp.Expectation(0)

	h.t++
	if h.t%h.resampPeriod == 0 {
		newX, newInner, newLogW, _, err := jointResample(h.rng, h.resampler, h.x, h.inner, h.logW)
		if err != nil {
			return nil, err
		}
		h.x, h.inner, h.logW = newX, newInner, newLogW
	}

	return estimate.NewBase(xEst.ColView(0))
}

// Run runs one Predict/Update cycle.
func (h *HMM) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := h.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return h.Update(pred.State(), u, z)
}

// Particles returns the current outer particle ensemble.
func (h *HMM) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(h.x)
	return p
}

// Weights returns the current normalized particle weights.
func (h *HMM) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(h.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (h *HMM) LogLikelihood() float64 {
	return h.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own outer state estimate at index 0, followed by any
// extra callbacks registered at construction) computed against the most
// recent Update.
func (h *HMM) Expectations() []*mat.Dense {
	return h.exp.Expectations()
}

// Posterior returns the particle-weighted mixture of every particle's
// inner discrete-state posterior.
func (h *HMM) Posterior() []float64 {
	w, _ := numeric.ShiftExp(h.logW)
	numeric.Normalize(w)

	var mix []float64
	for c, f := range h.inner {
		p := f.Posterior()
		if mix == nil {
			mix = make([]float64, len(p))
		}
		for k, v := range p {
			mix[k] += w[c] * v
		}
	}
	return mix
}
