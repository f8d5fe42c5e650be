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
)

// forceOuter is the KalmanOuterModel whose outer particle is a scalar
// additive force injected into the inner Kalman filter's control input.
type forceOuter struct{}

func (forceOuter) Propagate(prev, u, q mat.Vector) (mat.Vector, error) {
	v := prev.AtVec(0) + q.AtVec(0)
	return mat.NewVecDense(1, []float64{v}), nil
}

func (forceOuter) Forcing(x mat.Vector) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{x.AtVec(0)}), nil
}

func rbpfKalmanFixture(t *testing.T) *Kalman {
	outerIC := model.NewInitCond(mat.NewVecDense(1, []float64{0}), mat.NewSymDense(1, []float64{0.01}))
	innerIC := model.NewInitCond(mat.NewVecDense(1, []float64{0}), mat.NewSymDense(1, []float64{1}))

	q, err := noise.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.01}))
	assert.NoError(t, err)

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

	f, err := NewKalman(forceOuter{}, q, outerIC, innerIC, newInner, 80, resample.Systematic{}, 1, 9)
	assert.NoError(t, err)
	return f
}

func TestRBPFKalmanRun(t *testing.T) {
	f := rbpfKalmanFixture(t)

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

func TestRBPFKalmanSequence(t *testing.T) {
	f := rbpfKalmanFixture(t)

	x := mat.NewVecDense(1, []float64{0})
	u := mat.NewVecDense(1, []float64{0})

	for i := 0; i < 6; i++ {
		z := mat.NewVecDense(1, []float64{0.1 * float64(i)})
		_, err := f.Run(x, u, z)
		assert.NoError(t, err)
	}

	assert.False(t, math.IsNaN(f.LogLikelihood()))
}

func TestRBPFKalmanInvalidParticleCount(t *testing.T) {
	outerIC := model.NewInitCond(mat.NewVecDense(1, []float64{0}), mat.NewSymDense(1, []float64{0.01}))
	innerIC := model.NewInitCond(mat.NewVecDense(1, []float64{0}), mat.NewSymDense(1, []float64{1}))
	q, err := noise.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{0.01}))
	assert.NoError(t, err)

	newInner := func() (*kalman.KF, error) {
		a := mat.NewDense(1, 1, []float64{1})
		m, err := model.NewBase(a, a, a, a)
		assert.NoError(t, err)
		return kalman.New(m, innerIC, q, q)
	}

	_, err = NewKalman(forceOuter{}, q, outerIC, innerIC, newInner, 0, resample.Systematic{}, 1, 1)
	assert.Error(t, err)
}
