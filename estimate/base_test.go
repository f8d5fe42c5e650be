package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestBase(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 1.0})

	b, err := NewBase(state)
	assert.NoError(err)
	assert.NotNil(b)

	for i := 0; i < state.Len(); i++ {
		assert.Equal(state.AtVec(i), b.State().AtVec(i))
	}
}

func TestBaseCov(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 2.0})

	b, err := NewBase(state)
	assert.NoError(err)
	bCov := b.Cov()

	assert.Equal(1.0, bCov.At(0, 0))
	assert.Equal(2.0, bCov.At(0, 1))
	assert.Equal(4.0, bCov.At(1, 1))
}

func TestBaseWithCov(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 2.0})
	cov := mat.NewSymDense(2, []float64{1.0, 0.0, 0.0, 1.0})

	b, err := NewBaseWithCov(state, cov)
	assert.NoError(err)
	assert.Equal(cov, b.Cov())
}
