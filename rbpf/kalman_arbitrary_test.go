package rbpf

import (
	"math"
	"testing"

	"github.com/milosgajdos/go-smc/kalman"
	"github.com/milosgajdos/go-smc/model"
	"github.com/milosgajdos/go-smc/noise"
	"github.com/milosgajdos/go-smc/resample"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// forceArbitraryOuter is the KalmanArbitraryModel counterpart of
// forceOuter: its outer particle is still a scalar additive force, but
// Sample places it at the mean of an informed proposal nudged toward the
// observation (no noise is added) rather than drawing from the prior
// random walk itself.
type forceArbitraryOuter struct {
	q float64
}

func (m forceArbitraryOuter) LogTransition(x, prev, u mat.Vector) float64 {
	mean := 0.0
	if prev != nil {
		mean = prev.AtVec(0)
	}
	return distuv.Normal{Mu: mean, Sigma: math.Sqrt(m.q)}.LogProb(x.AtVec(0))
}

func (m forceArbitraryOuter) SampleInitial(y mat.Vector) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{0}), nil
}

func (m forceArbitraryOuter) LogInitial(x, y mat.Vector) float64 {
	return distuv.Normal{Mu: 0, Sigma: math.Sqrt(m.q)}.LogProb(x.AtVec(0))
}

func (m forceArbitraryOuter) Sample(prev, u, y mat.Vector) (mat.Vector, error) {
	mean := prev.AtVec(0) + 0.3*(y.AtVec(0)-prev.AtVec(0))
	return mat.NewVecDense(1, []float64{mean}), nil
}

func (m forceArbitraryOuter) LogProposal(x, prev, u, y mat.Vector) float64 {
	mean := prev.AtVec(0) + 0.3*(y.AtVec(0)-prev.AtVec(0))
	return distuv.Normal{Mu: mean, Sigma: math.Sqrt(m.q)}.LogProb(x.AtVec(0))
}

func (m forceArbitraryOuter) Forcing(x mat.Vector) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{x.AtVec(0)}), nil
}

func rbpfKalmanArbitraryFixture(t *testing.T) *KalmanArbitrary {
	innerIC := model.NewInitCond(mat.NewVecDense(1, []float64{0}), mat.NewSymDense(1, []float64{1}))

	newInner := func() (*kalman.KF, error) {
		a := mat.NewDense(1, 1, []float64{1})
		b := mat.NewDense(1, 1, []float64{1})
		c := mat.NewDense(1, 1, []float64{1})
		d := mat.NewDense(1, 1, []float64{0})
		m, err := model.NewBase(a, b, c, d)
		assert.NoError(t, err)

		innerQ, err := noise.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.1}))
		assert.NoError(t, err)
		innerR, err := noise.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.1}))
		assert.NoError(t, err)

		return kalman.New(m, innerIC, innerQ, innerR)
	}

	f, err := NewKalmanArbitrary(forceArbitraryOuter{q: 0.01}, innerIC, newInner, 80, resample.Systematic{}, 1, 9)
	assert.NoError(t, err)
	return f
}

func TestRBPFKalmanArbitraryRun(t *testing.T) {
	f := rbpfKalmanArbitraryFixture(t)

	x := mat.NewVecDense(1, []float64{0})
	u := mat.NewVecDense(1, []float64{0})
	z := mat.NewVecDense(1, []float64{0.5})

	est, err := f.Run(x, u, z)
	assert.NoError(t, err)
	assert.NotNil(t, est.State())

	w := f.Weights()
	sum := 0.0
	for i := 0; i < w.Len(); i++ {
		sum += w.AtVec(i)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestRBPFKalmanArbitrarySequence(t *testing.T) {
	f := rbpfKalmanArbitraryFixture(t)

	x := mat.NewVecDense(1, []float64{0})
	u := mat.NewVecDense(1, []float64{0})

	for i := 0; i < 6; i++ {
		z := mat.NewVecDense(1, []float64{0.1 * float64(i)})
		_, err := f.Run(x, u, z)
		assert.NoError(t, err)
	}

	assert.False(t, math.IsNaN(f.LogLikelihood()))
}

func TestRBPFKalmanArbitraryExpectations(t *testing.T) {
	f := rbpfKalmanArbitraryFixture(t)

	x := mat.NewVecDense(1, []float64{0})
	u := mat.NewVecDense(1, []float64{0})
	z := mat.NewVecDense(1, []float64{0.5})

	_, err := f.Run(x, u, z)
	assert.NoError(t, err)

	exps := f.Expectations()
	assert.Len(t, exps, 1)
	assert.NotNil(t, exps[0])
}

func TestRBPFKalmanArbitraryInvalidParticleCount(t *testing.T) {
	innerIC := model.NewInitCond(mat.NewVecDense(1, []float64{0}), mat.NewSymDense(1, []float64{1}))
	newInner := func() (*kalman.KF, error) {
		a := mat.NewDense(1, 1, []float64{1})
		m, err := model.NewBase(a, a, a, a)
		assert.NoError(t, err)
		return kalman.New(m, innerIC, nil, nil)
	}

	_, err := NewKalmanArbitrary(forceArbitraryOuter{q: 0.01}, innerIC, newInner, 0, resample.Systematic{}, 1, 1)
	assert.Error(t, err)
}
