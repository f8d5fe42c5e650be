package particle

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/estimate"
	"github.com/milosgajdos/go-smc/numeric"
	"github.com/milosgajdos/go-smc/resample"
	"gonum.org/v1/gonum/mat"
)

// SISRCRN is the Common Random Numbers variant of SISR: no step draws
// from an internally owned entropy source. Every particle's proposal
// sample and, on steps where resampling fires, the resampler's offset
// are deterministic functions of vectors the caller supplies fresh each
// step. Holding the caller's random seed fixed across repeated calls with
// varying model parameters is what makes the filter's log-likelihood a
// differentiable function of those parameters.
type SISRCRN struct {
	model CRNModel

	x    *mat.Dense
	logW []float64
	exp  *ExpectationCache

	resampler    resample.Resampler
	resampPeriod int
	t            int
	logCondLike  float64

	started bool
}

// NewSISRCRN creates a SISR-CRN filter with n particles. Any extra
// callbacks are registered alongside the filter's own state estimate in
// its expectation cache; see Expectations.
func NewSISRCRN(model CRNModel, n int, resampler resample.Resampler, resampPeriod int, extra ...ExpectationCallback) (*SISRCRN, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}
	if resampPeriod <= 0 {
		return nil, fmt.Errorf("invalid resample period: %d", resampPeriod)
	}

	return &SISRCRN{
		model:        model,
		logW:         resample.UniformLogWeights(n),
		exp:          NewExpectationCache(extra...),
		resampler:    resampler,
		resampPeriod: resampPeriod,
	}, nil
}

// Predict is a no-op; see SISR.Predict for why sampling happens in Update.
func (s *SISRCRN) Predict(x, _ mat.Vector) (pf.Estimate, error) {
	return estimate.NewBase(x)
}

// Update draws every particle c by applying model.SampleCRN (or, at t=1,
// SampleInitialCRN) to U[c], reweights, and resamples using resamplerU0
// if the configured period has elapsed. U must hold one vector per
// particle slot; resamplerU0 is only consumed on steps where resampling
// actually fires.
func (s *SISRCRN) Update(ctrl, z mat.Vector, U []mat.Vector, resamplerU0 float64) (pf.Estimate, error) {
	n := len(s.logW)
	if len(U) != n {
		return nil, fmt.Errorf("random vector count/particle count mismatch: %d != %d", len(U), n)
	}

	if !s.started {
		x0, err := s.model.SampleInitialCRN(z, U[0])
		if err != nil {
			return nil, fmt.Errorf("initial particle sample failed: %v", err)
		}
		nx := x0.Len()
		s.x = mat.NewDense(nx, n, nil)
		s.x.Slice(0, nx, 0, 1).(*mat.Dense).Copy(x0)
		s.logW[0] += s.model.LogTransition(x0, nil, ctrl) + s.model.LogObservation(z, x0) - s.model.LogInitial(x0, z)

		for c := 1; c < n; c++ {
			xc, err := s.model.SampleInitialCRN(z, U[c])
			if err != nil {
				return nil, fmt.Errorf("initial particle sample failed: %v", err)
			}
			s.x.Slice(0, nx, c, c+1).(*mat.Dense).Copy(xc)
			s.logW[c] += s.model.LogTransition(xc, nil, ctrl) + s.model.LogObservation(z, xc) - s.model.LogInitial(xc, z)
		}
		s.started = true
	} else {
		rows, _ := s.x.Dims()
		old := mat.DenseCopyOf(s.x)
		next := mat.NewDense(rows, n, nil)
		for c := 0; c < n; c++ {
			prev := old.ColView(c)
			xc, err := s.model.SampleCRN(prev, ctrl, z, U[c])
			if err != nil {
				return nil, fmt.Errorf("particle sample failed: %v", err)
			}
			next.Slice(0, rows, c, c+1).(*mat.Dense).Copy(xc)
			s.logW[c] += s.model.LogTransition(xc, prev, ctrl) + s.model.LogObservation(z, xc) - s.model.LogProposal(xc, prev, ctrl, z)
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
		if err := s.resample(resamplerU0); err != nil {
			return nil, err
		}
	}

	return estimate.NewBase(xEst.ColView(0))
}

// Run runs one Predict/Update cycle.
func (s *SISRCRN) Run(x, ctrl, z mat.Vector, U []mat.Vector, resamplerU0 float64) (pf.Estimate, error) {
	if _, err := s.Predict(x, ctrl); err != nil {
		return nil, err
	}
	return s.Update(ctrl, z, U, resamplerU0)
}

func (s *SISRCRN) resample(u0 float64) error {
	idx, err := resample.IndicesU(s.resampler, s.x, s.logW, u0)
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
func (s *SISRCRN) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(s.x)
	return p
}

// Weights returns the current normalized particle weights.
func (s *SISRCRN) Weights() mat.Vector {
	w, _ := numeric.ShiftExp(s.logW)
	numeric.Normalize(w)
	return mat.NewVecDense(len(w), w)
}

// LogLikelihood returns the accumulated log conditional likelihood of the
// observed sequence so far.
func (s *SISRCRN) LogLikelihood() float64 {
	return s.logCondLike
}

// Expectations returns the weighted average of every registered callback
// (the filter's own state estimate at index 0, followed by any extra
// callbacks registered at construction) computed against the most recent
// Update.
func (s *SISRCRN) Expectations() []*mat.Dense {
	return s.exp.Expectations()
}
