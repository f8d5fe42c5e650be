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

// SISR is a Sequential Importance Sampling with Resampling particle
// filter: particles are drawn from a problem-specific proposal rather
// than the model's own transition density, and reweighted by the ratio
// of transition-times-observation density over the proposal density.
type SISR struct {
	model SISRModel

	x    *mat.Dense
	logW []float64
	exp  *ExpectationCache

	resampler    resample.Resampler
	resampPeriod int
	t            int
	rng          *rand.Rand
	logCondLike  float64

	started bool
}

// NewSISR creates a SISR filter with n particles, drawn at the first
// Update from model's initial proposal. Any extra callbacks are
// registered alongside the filter's own state estimate in its
// expectation cache; see Expectations.
func NewSISR(model SISRModel, n int, resampler resample.Resampler, resampPeriod int, seed uint64, extra ...ExpectationCallback) (*SISR, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	return &SISR{
		model:        model,
		logW:         resample.UniformLogWeights(n),
		exp:          NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Predict is a no-op for SISR: unlike the Bootstrap filter, particle
// propagation happens inside Update, jointly with the proposal draw,
// since the proposal density may itself depend on the observation y.
func (s *SISR) Predict(x, _ mat.Vector) (pf.Estimate, error) {
	return estimate.NewBase(x)
}

// Update draws (or, at t=1, initializes) every particle from the
// problem-specific proposal, reweights it by the transition/observation
// over proposal density ratio, and resamples if the configured period
// has elapsed.
func (s *SISR) Update(_, u, z mat.Vector) (pf.Estimate, error) {
	n := len(s.logW)

	if !s.started {
		x0, err := s.model.SampleInitial(z)
		if err != nil {
			return nil, fmt.Errorf("initial particle sample failed: %v", err)
		}
		nx := x0.Len()
		s.x = mat.NewDense(nx, n, nil)
		s.x.Slice(0, nx, 0, 1).(*mat.Dense).Copy(x0)
		s.logW[0] += s.model.LogTransition(x0, nil, u) + s.model.LogObservation(z, x0) - s.model.LogInitial(x0, z)

		for c := 1; c < n; c++ {
			xc, err := s.model.SampleInitial(z)
			if err != nil {
				return nil, fmt.Errorf("initial particle sample failed: %v", err)
			}
			s.x.Slice(0, nx, c, c+1).(*mat.Dense).Copy(xc)
			s.logW[c] += s.model.LogTransition(xc, nil, u) + s.model.LogObservation(z, xc) - s.model.LogInitial(xc, z)
		}
		s.started = true
	} else {
		rows, _ := s.x.Dims()
		old := mat.DenseCopyOf(s.x)
		next := mat.NewDense(rows, n, nil)
		for c := 0; c < n; c++ {
			prev := old.ColView(c)
			xc, err := s.model.Sample(prev, u, z)
			if err != nil {
				return nil, fmt.Errorf("particle sample failed: %v", err)
			}
			next.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)
			s.logW[c] += s.model.LogTransition(xc, prev, u) + s.model.LogObservation(z, xc) - s.model.LogProposal(xc, prev, u, z)
		}
		s.x = next
	}

	s.logCondLike += numeric.LogSumExp(s.logW)

	w, _ := numeric.ShiftExp(s.logW)
	numeric.Normalize(w)
	for i := range s.logW {
		s.logW[i] = math.Log(w[i])
	}

	if err := s.exp.Update(s.x, w); err != nil {
		return nil, err
	}
	xEst := s.exp.Expectation(0)

	s.t++
	if s.t%s.resampPeriod == 0 {
		if err := s.resample(); err != nil {
			return nil, err
		}
	}

	return estimate.NewBase(xEst.ColView(0))
}

// Run runs one Predict/Update cycle.
func (s *SISR) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := s.Predict(x, u)
	if err != nil {
		return nil, err
	}
	return s.Update(pred.State(), u, z)
}

func (s *SISR) resample() error {
	idx, err := resample.Indices(s.rng, s.resampler, s.x, s.logW)
	if err != nil {
		return fmt.Errorf("resample failed: %v", err)
	}

	rows, _ := s.x.Dims()
	old := mat.DenseCopyOf(s.x)
	for c, i := range idx {
		s.x.Slice(0, rows, c, c+1).(*mat.Dense).Copy(old.ColView(i))
	}

	s.logW = resample.UniformLogWeights(len(s.logW))
	return nil
}

// Particles returns the current particle ensemble.
func (s *SISR) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(s.x)
	return p
}

// Weights returns the current normalized particle weights.
func (s *SISR) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(s.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (s *SISR) LogLikelihood() float64 {
	return s.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own state estimate at index 0, followed by any extra
// callbacks registered at construction) computed against the most recent
// Update.
func (s *SISR) Expectations() []*mat.Dense {
	return s.exp.Expectations()
}
