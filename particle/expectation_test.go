package particle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestWeightedExpectationMeanOfTwo(t *testing.T) {
	x := mat.NewDense(1, 2, []float64{0, 2})
	w := []float64{0.5, 0.5}

	got, err := WeightedExpectation(x, w, IdentityExpectation)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, got.At(0, 0), 1e-12)
}

func TestWeightedExpectationCountMismatch(t *testing.T) {
	x := mat.NewDense(1, 2, []float64{0, 2})
	w := []float64{1.0}

	_, err := WeightedExpectation(x, w, IdentityExpectation)
	assert.Error(t, err)
}

func TestExpectationCacheIdentityPlusExtra(t *testing.T) {
	square := func(v mat.Vector) *mat.Dense {
		return mat.NewDense(1, 1, []float64{v.AtVec(0) * v.AtVec(0)})
	}

	c := NewExpectationCache(square)
	assert.Equal(t, 2, c.Len())

	x := mat.NewDense(1, 3, []float64{1, 2, 3})
	w := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}

	assert.NoError(t, c.Update(x, w))

	mean := c.Expectation(0)
	assert.InDelta(t, 2.0, mean.At(0, 0), 1e-9)

	meanSq := c.Expectation(1)
	assert.InDelta(t, (1.0+4.0+9.0)/3.0, meanSq.At(0, 0), 1e-9)

	all := c.Expectations()
	assert.Len(t, all, 2)
}

func TestExpectationCacheNoExtra(t *testing.T) {
	c := NewExpectationCache()
	assert.Equal(t, 1, c.Len())

	x := mat.NewDense(1, 2, []float64{0, 4})
	w := []float64{0.5, 0.5}

	assert.NoError(t, c.Update(x, w))
	assert.InDelta(t, 2.0, c.Expectation(0).At(0, 0), 1e-12)
}
