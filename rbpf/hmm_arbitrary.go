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

// HMMArbitraryModel is the Arbitrary (SISR-like) outer-proposal variant
// of HMMOuterModel: rather than propagating particles through the outer
// prior f(x2_t|x2_{t-1}, u_t), they are drawn from a problem-specific
// proposal q, and the outer log-weight is corrected by
// log f(x2_t|x2_{t-1}, u_t) - log q(x2_t|x2_{t-1}, u_t, y_t), per spec
// section 4.5 step 3.
type HMMArbitraryModel interface {
	particle.Transition
	particle.Proposal
	// Observation builds the inner HMM's observation model for outer
	// particle x, re-evaluated fresh every step since x varies per
	// particle and per time step.
	Observation(x mat.Vector) hmm.ObservationModel
}

// HMMArbitrary is the Arbitrary-outer-proposal counterpart of HMM: see
// HMM for the shared Rao-Blackwellized HMM composite structure. Unlike
// HMM, particle propagation happens inside Update rather than Predict,
// since the outer proposal density may itself depend on the observation.
type HMMArbitrary struct {
	outer    HMMArbitraryModel
	newInner func(x0 mat.Vector) (*hmm.Filter, error)

	x     *mat.Dense
	inner []*hmm.Filter
	logW  []float64
	exp   *particle.ExpectationCache

	resampler    resample.Resampler
	resampPeriod int
	t            int
	rng          *rand.Rand
	logCondLike  float64

	started bool
}

// NewHMMArbitrary creates a RBPF-HMM composite with n particles, drawn at
// the first Update from outer's initial proposal and each given a fresh
// inner filter from newInner. Any extra callbacks are registered
// alongside the filter's own outer state estimate in its expectation
// cache; see Expectations.
func NewHMMArbitrary(outer HMMArbitraryModel, newInner func(x0 mat.Vector) (*hmm.Filter, error), n int, resampler resample.Resampler, resampPeriod int, seed uint64, extra ...particle.ExpectationCallback) (*HMMArbitrary, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	return &HMMArbitrary{
		outer:        outer,
		newInner:     newInner,
		logW:         resample.UniformLogWeights(n),
		exp:          particle.NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Predict is a no-op; see HMMArbitrary's doc comment for why sampling
// happens in Update.
func (h *HMMArbitrary) Predict(x, _ mat.Vector) (pf.Estimate, error) {
	return estimate.NewBase(x)
}

// Update draws (or, at t=1, initializes) every outer particle from the
// problem-specific proposal, conditions its inner HMM filter on
// measurement z, corrects the outer log-weight by the inner filter's log
// conditional likelihood delta plus the prior/proposal log-density
// ratio, and resamples (outer particles and inner filters jointly) if
// the configured period has elapsed.
func (h *HMMArbitrary) Update(_, u, z mat.Vector) (pf.Estimate, error) {
	n := len(h.logW)

	if !h.started {
		x0, err := h.outer.SampleInitial(z)
		if err != nil {
			return nil, fmt.Errorf("initial outer particle sample failed: %v", err)
		}
		nx := x0.Len()
		h.x = mat.NewDense(nx, n, nil)
		h.inner = make([]*hmm.Filter, n)

		if err := h.initParticle(0, x0, u, z); err != nil {
			return nil, err
		}
		for c := 1; c < n; c++ {
			xc, err := h.outer.SampleInitial(z)
			if err != nil {
				return nil, fmt.Errorf("initial outer particle sample failed: %v", err)
			}
			if err := h.initParticle(c, xc, u, z); err != nil {
				return nil, err
			}
		}
		h.started = true
	} else {
		rows, _ := h.x.Dims()
		old := mat.DenseCopyOf(h.x)
		for c := 0; c < n; c++ {
			prev := old.ColView(c)
			xc, err := h.outer.Sample(prev, u, z)
			if err != nil {
				return nil, fmt.Errorf("outer particle sample failed: %v", err)
			}
			h.x.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)

			logF := h.outer.LogTransition(xc, prev, u)
			logQ := h.outer.LogProposal(xc, prev, u, z)

			before := h.inner[c].LogLikelihood()
			obs := h.outer.Observation(xc)
			if _, err := h.inner[c].UpdateWithObs(z, obs); err != nil {
				return nil, fmt.Errorf("inner filter update failed: %v", err)
			}
			h.logW[c] += h.inner[c].LogLikelihood() - before + logF - logQ
		}
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

// initParticle seeds outer particle slot c with x0, constructs its inner
// filter, conditions it on z, and sets the slot's initial log-weight
// increment from the t=1 prior/proposal log-density ratio.
func (h *HMMArbitrary) initParticle(c int, x0, u, z mat.Vector) error {
	h.x.Slice(0, x0.Len(), c, c+1).(*mat.Dense).Copy(x0)

	logF := h.outer.LogTransition(x0, nil, u)
	logQ := h.outer.LogInitial(x0, z)

	f, err := h.newInner(x0)
	if err != nil {
		return fmt.Errorf("inner filter construction failed: %v", err)
	}
	h.inner[c] = f

	before := f.LogLikelihood()
	obs := h.outer.Observation(x0)
	if _, err := f.UpdateWithObs(z, obs); err != nil {
		return fmt.Errorf("inner filter update failed: %v", err)
	}
	h.logW[c] += f.LogLikelihood() - before + logF - logQ
	return nil
}

// Run runs one Predict/Update cycle.
func (h *HMMArbitrary) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := h.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return h.Update(pred.State(), u, z)
}

// Particles returns the current outer particle ensemble.
func (h *HMMArbitrary) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(h.x)
	return p
}

// Weights returns the current normalized particle weights.
func (h *HMMArbitrary) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(h.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (h *HMMArbitrary) LogLikelihood() float64 {
	return h.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own outer state estimate at index 0, followed by any
// extra callbacks registered at construction) computed against the most
// recent Update.
func (h *HMMArbitrary) Expectations() []*mat.Dense {
	return h.exp.Expectations()
}

// Posterior returns the particle-weighted mixture of every particle's
// inner discrete-state posterior.
func (h *HMMArbitrary) Posterior() []float64 {
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
