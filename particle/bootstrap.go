package particle

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/density"
	"github.com/milosgajdos/go-smc/estimate"
	"github.com/milosgajdos/go-smc/numeric"
	"github.com/milosgajdos/go-smc/resample"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Bootstrap is the Bootstrap (a.k.a. SIR, Sequential Importance
// Resampling) particle filter: particles are propagated through the
// model's own transition density and reweighted purely by the
// observation-error density, with no problem-specific proposal.
type Bootstrap struct {
	model  pf.Model
	q, r   pf.Noise
	errPDF density.LogProber

	x    *mat.Dense
	logW []float64
	exp  *ExpectationCache

	resampler    resample.Resampler
	resampPeriod int
	t            int
	rng          *rand.Rand
	logCondLike  float64
}

// NewBootstrap creates a Bootstrap filter with n particles, each a copy
// of ic's state, using model for propagation/observation, q/r as process/measurement
// noise, errPDF as the observation-error density, resampler as the
// resampling strategy, and resampPeriod as the number of steps between
// resamples (1 resamples every step). Any extra callbacks are registered
// alongside the filter's own state estimate in its expectation cache; see
// Expectations.
func NewBootstrap(model pf.Model, ic pf.InitCond, q, r pf.Noise, errPDF density.LogProber, n int, resampler resample.Resampler, resampPeriod int, seed uint64, extra ...ExpectationCallback) (*Bootstrap, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	nx, _ := model.Dims()
	if nx <= 0 {
		return nil, fmt.Errorf("invalid model state dimension: %d", nx)
	}

	rng := rand.New(rand.NewSource(seed))

	x := mat.NewDense(ic.State().Len(), n, nil)
	for c := 0; c < n; c++ {
		col := mat.VecDenseCopyOf(ic.State())
		x.Slice(0, col.Len(), c, c+1).(*mat.Dense).Copy(col)
	}

	return &Bootstrap{
		model:        model,
		q:            q,
		r:            r,
		errPDF:       errPDF,
		x:            x,
		logW:         resample.UniformLogWeights(n),
		exp:          NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
		rng:          rng,
	}, nil
}

// Predict propagates the external state estimate x and every particle in
// the ensemble one step ahead.
func (b *Bootstrap) Predict(x, u mat.Vector) (pf.Estimate, error) {
	xNext, err := b.model.Propagate(x, u, b.q.Sample())
	if err != nil {
		return nil, fmt.Errorf("state propagation failed: %v", err)
	}

	rows, cols := b.x.Dims()
	xPred := mat.NewDense(rows, cols, nil)
	for c := 0; c < cols; c++ {
		xc, err := b.model.Propagate(b.x.ColView(c), u, b.q.Sample())
		if err != nil {
			return nil, fmt.Errorf("particle propagation failed: %v", err)
		}
		xPred.Slice(0, xc.Len(), c, c+1).(*mat.Dense).Copy(xc)
	}
	b.x.Copy(xPred)

	return estimate.NewBase(xNext)
}

// Update reweights every particle against measurement z, computes the
// weighted-mean state estimate, accumulates the step's log conditional
// likelihood, and resamples if the configured period has elapsed.
func (b *Bootstrap) Update(_, u, z mat.Vector) (pf.Estimate, error) {
	n := len(b.logW)
	logLikes := make([]float64, n)

	for c := 0; c < n; c++ {
		yPred, err := b.model.Observe(b.x.ColView(c), u, b.r.Sample())
		if err != nil {
			return nil, fmt.Errorf("particle observation failed: %v", err)
		}

		inn := make([]float64, z.Len())
		for r := 0; r < z.Len(); r++ {
			inn[r] = z.AtVec(r) - yPred.AtVec(r)
		}
		logLikes[c] = b.errPDF.LogProb(inn)
	}

	for c := range b.logW {
		b.logW[c] += logLikes[c]
	}

	b.logCondLike += numeric.LogSumExp(b.logW)

	w, _ := numeric.ShiftExp(b.logW)
	numeric.Normalize(w)
	for i := range b.logW {
		b.logW[i] = math.Log(w[i])
	}

	if err := b.exp.Update(b.x, w); err != nil {
		return nil, err
	}
	xEst := b.exp.Expectation(0)

	b.t++
	if b.t%b.resampPeriod == 0 {
		if err := b.resample(); err != nil {
			return nil, err
		}
	}

	return estimate.NewBase(xEst.ColView(0))
}

// Run runs one Predict/Update cycle.
func (b *Bootstrap) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := b.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return b.Update(pred.State(), u, z)
}

func (b *Bootstrap) resample() error {
	idx, err := resample.Indices(b.rng, b.resampler, b.x, b.logW)
	if err != nil {
		return fmt.Errorf("resample failed: %v", err)
	}

	rows, _ := b.x.Dims()
	old := mat.DenseCopyOf(b.x)
	for c, i := range idx {
		b.x.Slice(0, rows, c, c+1).(*mat.Dense).Copy(old.ColView(i))
	}

	b.logW = resample.UniformLogWeights(len(b.logW))
	return nil
}

// Particles returns the current particle ensemble.
func (b *Bootstrap) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(b.x)
	return p
}

// Weights returns the current normalized particle weights.
func (b *Bootstrap) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(b.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (b *Bootstrap) LogLikelihood() float64 {
	return b.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own state estimate at index 0, followed by any extra
// callbacks registered at construction) computed against the most recent
// Update.
func (b *Bootstrap) Expectations() []*mat.Dense {
	return b.exp.Expectations()
}
