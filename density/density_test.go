package density

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestGaussian(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	src := rand.New(rand.NewSource(1))
	g, err := NewGaussian([]float64{0, 0}, cov, src)
	assert.NoError(err)

	lp := g.LogProb([]float64{0, 0})
	assert.True(lp > g.LogProb([]float64{3, 3}))
}

func TestUnivariateGaussian(t *testing.T) {
	assert := assert.New(t)

	g := NewUnivariateGaussian(0, 1)
	assert.True(g.LogProb([]float64{0}) > g.LogProb([]float64{5}))
}

func TestScaledT(t *testing.T) {
	assert := assert.New(t)

	s := NewScaledT(0, 1, 5)
	assert.True(s.LogProb([]float64{0}) > s.LogProb([]float64{5}))
}

func TestCategorical(t *testing.T) {
	assert := assert.New(t)

	c := NewCategorical([]float64{1, 3})
	assert.InDelta(math.Log(0.75), c.LogProb([]float64{1}), 1e-9)
	assert.True(math.IsInf(c.LogProb([]float64{5}), -1))
}
