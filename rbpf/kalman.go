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

// KalmanOuterModel is the outer, particle-filtered half of a Rao-
// Blackwellized Kalman composite: a bootstrap proposal for the outer
// state, plus a hook that computes the additional control forcing the
// inner linear-Gaussian system experiences because of the current outer
// particle (e.g. a jump-linear system's discrete regime acting through an
// additive offset rather than through the system matrices themselves).
type KalmanOuterModel interface {
	// Propagate draws the next outer particle given the previous one,
	// control input u, and process noise sample q.
	Propagate(prev, u, q mat.Vector) (mat.Vector, error)
	// Forcing returns the inner system's additional control contribution
	// for outer particle x.
	Forcing(x mat.Vector) (mat.Vector, error)
}

// Kalman is a Rao-Blackwellized particle filter pairing a particle-
// filtered outer state with an exact linear-Gaussian Kalman filter per
// particle.
type Kalman struct {
	outer KalmanOuterModel
	q     pf.Noise

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
}

// NewKalman creates a RBPF-Kalman composite with n particles: the outer
// ensemble is n copies of outerIC.State(), and every particle's inner Kalman filter
// constructed fresh from newInner and seeded at innerIC.State(). Any
// extra callbacks are registered alongside the filter's own outer state
// estimate in its expectation cache; see Expectations.
func NewKalman(outer KalmanOuterModel, q pf.Noise, outerIC pf.InitCond, innerIC pf.InitCond, newInner func() (*kalman.KF, error), n int, resampler resample.Resampler, resampPeriod int, seed uint64, extra ...particle.ExpectationCallback) (*Kalman, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	x := mat.NewDense(outerIC.State().Len(), n, nil)
	inner := make([]*kalman.KF, n)
	innerX := make([]*mat.VecDense, n)
	for c := 0; c < n; c++ {
		col := mat.VecDenseCopyOf(outerIC.State())
		x.Slice(0, col.Len(), c, c+1).(*mat.Dense).Copy(col)

		f, err := newInner()
		if err != nil {
			return nil, fmt.Errorf("inner filter construction failed: %v", err)
		}
		inner[c] = f
		innerX[c] = mat.VecDenseCopyOf(innerIC.State())
	}

	return &Kalman{
		outer:        outer,
		q:            q,
		x:            x,
		inner:        inner,
		innerX:       innerX,
		logW:         resample.UniformLogWeights(n),
		exp:          particle.NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Predict propagates the external state estimate x and every outer
// particle one step ahead.
func (k *Kalman) Predict(x, u mat.Vector) (pf.Estimate, error) {
	xNext, err := k.outer.Propagate(x, u, k.q.Sample())
	if err != nil {
		return nil, fmt.Errorf("state propagation failed: %v", err)
	}

	rows, cols := k.x.Dims()
	next := mat.NewDense(rows, cols, nil)
	for c := 0; c < cols; c++ {
		xc, err := k.outer.Propagate(k.x.ColView(c), u, k.q.Sample())
		if err != nil {
			return nil, fmt.Errorf("outer particle propagation failed: %v", err)
		}
		next.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)
	}
	k.x.Copy(next)

	return estimate.NewBase(xNext)
}

// Update runs every particle's inner Kalman filter one Predict/Update
// cycle against measurement z, with its control input forced by the
// particle's current outer state, sets the weight increment to the
// resulting step log likelihood, and resamples (outer particles and
// inner filters jointly) if the configured period has elapsed.
func (k *Kalman) Update(_, u, z mat.Vector) (pf.Estimate, error) {
	n := len(k.logW)

	for c := 0; c < n; c++ {
		forcing, err := k.outer.Forcing(k.x.ColView(c))
		if err != nil {
			return nil, fmt.Errorf("forcing computation failed: %v", err)
		}

		uTot := mat.NewVecDense(u.Len(), nil)
		uTot.AddVec(u, forcing)

		est, err := k.inner[c].Run(k.innerX[c], uTot, z)
		if err != nil {
			return nil, fmt.Errorf("inner filter update failed: %v", err)
		}
		k.innerX[c] = mat.VecDenseCopyOf(est.State())

		k.logW[c] += k.inner[c].LogLikelihood()
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

// Run runs one Predict/Update cycle.
func (k *Kalman) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return k.Update(pred.State(), u, z)
}

// Particles returns the current outer particle ensemble.
func (k *Kalman) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(k.x)
	return p
}

// Weights returns the current normalized particle weights.
func (k *Kalman) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(k.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (k *Kalman) LogLikelihood() float64 {
	return k.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own outer state estimate at index 0, followed by any
// extra callbacks registered at construction) computed against the most
// recent Update.
func (k *Kalman) Expectations() []*mat.Dense {
	return k.exp.Expectations()
}
