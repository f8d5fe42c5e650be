package gammafilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewRejectsInvalidPrior(t *testing.T) {
	assert := assert.New(t)

	_, err := New(-1, 1, 0.99)
	assert.Error(err)

	_, err = New(1, -1, 0.99)
	assert.Error(err)

	_, err = New(1, 1, 1.5)
	assert.Error(err)

	_, err = New(1, 1, 0)
	assert.Error(err)
}

func TestUpdateIncreasesShape(t *testing.T) {
	assert := assert.New(t)

	f, err := New(2, 2, 1.0)
	assert.NoError(err)

	mean0 := f.Mean()
	_, _ = f.Update(1.0)
	alpha, _ := f.Params()
	assert.Equal(2.5, alpha)
	assert.NotEqual(mean0, f.Mean())
}

func TestForecastLogLikelihoodInsufficientDOF(t *testing.T) {
	assert := assert.New(t)

	f, err := New(0.1, 1, 0.01)
	assert.NoError(err)

	_, err = f.ForecastLogLikelihood(0.5)
	assert.ErrorIs(err, ErrInsufficientDOF)
}

func TestForecastLogLikelihood(t *testing.T) {
	assert := assert.New(t)

	f, err := New(5, 5, 1.0)
	assert.NoError(err)

	ll, err := f.ForecastLogLikelihood(0.5)
	assert.NoError(err)
	assert.True(ll < 0)
}

func TestMultivariateUpdate(t *testing.T) {
	assert := assert.New(t)

	sigma := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	f, err := NewMultivariate(5, 5, 1.0, sigma)
	assert.NoError(err)

	y := mat.NewVecDense(2, []float64{0.5, -0.5})
	mean, variance, err := f.Update(y)
	assert.NoError(err)
	assert.True(mean > 0)
	assert.True(variance > 0)
}

func TestMultivariateForecast(t *testing.T) {
	assert := assert.New(t)

	sigma := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	f, err := NewMultivariate(5, 5, 1.0, sigma)
	assert.NoError(err)

	mean, err := f.ForecastMean()
	assert.NoError(err)
	assert.Equal(0.0, mean.AtVec(0))

	cov, err := f.ForecastCov()
	assert.NoError(err)
	assert.True(cov.At(0, 0) > 0)

	y := mat.NewVecDense(2, []float64{0.1, 0.1})
	ll, err := f.ForecastLogLikelihood(y)
	assert.NoError(err)
	assert.True(ll < 0)
}

func TestMultivariateInsufficientDOF(t *testing.T) {
	assert := assert.New(t)

	sigma := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	f, err := NewMultivariate(0.1, 1, 0.01, sigma)
	assert.NoError(err)

	_, err = f.ForecastMean()
	assert.ErrorIs(err, ErrInsufficientDOF)

	_, err = f.ForecastCov()
	assert.ErrorIs(err, ErrInsufficientDOF)
}
