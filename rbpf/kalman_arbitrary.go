package rbpf

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/estimate"
	"github.com/milosgajdos/go-smc/kalman"
	"github.com/milosgajdos/go-smc/numeric"
	"github.com/milosgajdos/go-smc/particle"
	"github.com/milosgajdos/go-smc/resample"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// KalmanArbitraryModel is the Arbitrary (SISR-like) outer-proposal
// variant of KalmanOuterModel: rather than propagating particles through
// the outer prior f(x2_t|x2_{t-1}, u_t), they are drawn from a
// problem-specific proposal q, and the outer log-weight is corrected by
// log f(x2_t|x2_{t-1}, u_t) - log q(x2_t|x2_{t-1}, u_t, y_t), per spec
// section 4.5 step 3.
type KalmanArbitraryModel interface {
	particle.Transition
	particle.Proposal
	// Forcing returns the inner system's additional control contribution
	// for outer particle x.
	Forcing(x mat.Vector) (mat.Vector, error)
}

// KalmanArbitrary is the Arbitrary-outer-proposal counterpart of Kalman:
// see Kalman for the shared Rao-Blackwellized Kalman composite structure.
// Unlike Kalman, particle propagation happens inside Update rather than
// Predict, since the outer proposal density may itself depend on the
// observation.
type KalmanArbitrary struct {
	outer    KalmanArbitraryModel
	newInner func() (*kalman.KF, error)
	innerIC  pf.InitCond

	x      *mat.Dense
	inner  []*kalman.KF
	innerX []*mat.VecDense
	logW   []float64
	exp    *particle.ExpectationCache

	resampler    resample.Resampler
	resampPeriod int
	t            int
	rng          *rand.Rand
	logCondLike  float64

	started bool
}

// NewKalmanArbitrary creates a RBPF-Kalman composite with n particles,
// drawn at the first Update from outer's initial proposal, each given a
// fresh inner Kalman filter from newInner seeded at innerIC.State(). Any
// extra callbacks are registered alongside the filter's own outer state
// estimate in its expectation cache; see Expectations.
func NewKalmanArbitrary(outer KalmanArbitraryModel, innerIC pf.InitCond, newInner func() (*kalman.KF, error), n int, resampler resample.Resampler, resampPeriod int, seed uint64, extra ...particle.ExpectationCallback) (*KalmanArbitrary, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	return &KalmanArbitrary{
		outer:        outer,
		newInner:     newInner,
		innerIC:      innerIC,
		logW:         resample.UniformLogWeights(n),
		exp:          particle.NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Predict is a no-op; see KalmanArbitrary's doc comment for why sampling
// happens in Update.
func (k *KalmanArbitrary) Predict(x, _ mat.Vector) (pf.Estimate, error) {
	return estimate.NewBase(x)
}

// Update draws (or, at t=1, initializes) every outer particle from the
// problem-specific proposal, runs its inner Kalman filter one
// Predict/Update cycle against measurement z with its control input
// forced by the particle's outer state, corrects the outer log-weight by
// the inner filter's step log likelihood plus the prior/proposal
// log-density ratio, and resamples (outer particles and inner filters
// jointly) if the configured period has elapsed.
func (k *KalmanArbitrary) Update(_, u, z mat.Vector) (pf.Estimate, error) {
	n := len(k.logW)

	if !k.started {
		x0, err := k.outer.SampleInitial(z)
		if err != nil {
			return nil, fmt.Errorf("initial outer particle sample failed: %v", err)
		}
		nx := x0.Len()
		k.x = mat.NewDense(nx, n, nil)
		k.inner = make([]*kalman.KF, n)
		k.innerX = make([]*mat.VecDense, n)

		if err := k.initParticle(0, x0, u, z); err != nil {
			return nil, err
		}
		for c := 1; c < n; c++ {
			xc, err := k.outer.SampleInitial(z)
			if err != nil {
				return nil, fmt.Errorf("initial outer particle sample failed: %v", err)
			}
			if err := k.initParticle(c, xc, u, z); err != nil {
				return nil, err
			}
		}
		k.started = true
	} else {
		rows, _ := k.x.Dims()
		old := mat.DenseCopyOf(k.x)
		for c := 0; c < n; c++ {
			prev := old.ColView(c)
			xc, err := k.outer.Sample(prev, u, z)
			if err != nil {
				return nil, fmt.Errorf("outer particle sample failed: %v", err)
			}
			k.x.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)

			logF := k.outer.LogTransition(xc, prev, u)
			logQ := k.outer.LogProposal(xc, prev, u, z)

			if err := k.updateInner(c, xc, u, z, logF, logQ); err != nil {
				return nil, err
			}
		}
	}

	k.logCondLike += numeric.LogSumExp(k.logW)

	w, _ := numeric.ShiftExp(k.logW)
	numeric.Normalize(w)
	for i := range k.logW {
		k.logW[i] = math.Log(w[i])
	}

	if err := k.exp.Update(k.x, w); err != nil {
		return nil, err
	}
	xEst := k.exp.Expectation(0)

	k.t++
	if k.t%k.resampPeriod == 0 {
		newX, newInner, newLogW, idx, err := jointResample(k.rng, k.resampler, k.x, k.inner, k.logW)
		if err != nil {
			return nil, err
		}

		innerXOld := k.innerX
		newInnerX := make([]*mat.VecDense, len(newInner))
		for c, i := range idx {
			newInnerX[c] = mat.VecDenseCopyOf(innerXOld[i])
		}

		k.x, k.inner, k.logW, k.innerX = newX, newInner, newLogW, newInnerX
	}

	return estimate.NewBase(xEst.ColView(0))
}

// initParticle seeds outer particle slot c with x0, constructs its inner
// Kalman filter at k.innerIC.State(), and sets the slot's initial
// log-weight increment from the t=1 prior/proposal log-density ratio.
func (k *KalmanArbitrary) initParticle(c int, x0, u, z mat.Vector) error {
	k.x.Slice(0, x0.Len(), c, c+1).(*mat.Dense).Copy(x0)

	logF := k.outer.LogTransition(x0, nil, u)
	logQ := k.outer.LogInitial(x0, z)

	f, err := k.newInner()
	if err != nil {
		return fmt.Errorf("inner filter construction failed: %v", err)
	}
	k.inner[c] = f
	k.innerX[c] = mat.VecDenseCopyOf(k.innerIC.State())

	return k.updateInner(c, x0, u, z, logF, logQ)
}

// updateInner runs particle c's inner Kalman filter one Predict/Update
// cycle forced by outer particle x, and applies the resulting weight
// increment corrected by the prior/proposal log-density ratio.
func (k *KalmanArbitrary) updateInner(c int, x, u, z mat.Vector, logF, logQ float64) error {
	forcing, err := k.outer.Forcing(x)
	if err != nil {
		return fmt.Errorf("forcing computation failed: %v", err)
	}

	uTot := mat.NewVecDense(u.Len(), nil)
	uTot.AddVec(u, forcing)

	est, err := k.inner[c].Run(k.innerX[c], uTot, z)
	if err != nil {
		return fmt.Errorf("inner filter update failed: %v", err)
	}
	k.innerX[c] = mat.VecDenseCopyOf(est.State())

	k.logW[c] += k.inner[c].LogLikelihood() + logF - logQ
	return nil
}

// Run runs one Predict/Update cycle.
func (k *KalmanArbitrary) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return k.Update(pred.State(), u, z)
}

// Particles returns the current outer particle ensemble.
func (k *KalmanArbitrary) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(k.x)
	return p
}

// Weights returns the current normalized particle weights.
func (k *KalmanArbitrary) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(k.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (k *KalmanArbitrary) LogLikelihood() float64 {
	return k.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own outer state estimate at index 0, followed by any
// extra callbacks registered at construction) computed against the most
// recent Update.
func (k *KalmanArbitrary) Expectations() []*mat.Dense {
	return k.exp.Expectations()
}
