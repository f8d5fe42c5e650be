// Package density provides the observation-error density evaluators the
// particle filters need: thin adapters over gonum's stat/distuv and
// stat/distmv, plus the scaled Student's-t the Gamma filter's forecast
// distribution requires. It intentionally does not attempt to reproduce
// the full density/sampling library of the original C++ source -- that
// remains out of scope (see SPEC_FULL.md).
package density

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogProber evaluates the log-density of an observation vector. It is the
// same shape as distmv.LogProber, so any gonum distmv distribution
// satisfies it directly.
type LogProber interface {
	LogProb(x []float64) float64
}

// Gaussian adapts a zero-mean (or any-mean) multivariate Normal to
// LogProber.
type Gaussian struct {
	dist *distmv.Normal
}

// NewGaussian builds a Gaussian LogProber with the given mean and
// covariance.
func NewGaussian(mean []float64, cov mat.Symmetric, src *rand.Rand) (*Gaussian, error) {
	dist, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, errNotPosDef
	}
	return &Gaussian{dist: dist}, nil
}

// LogProb implements LogProber.
func (g *Gaussian) LogProb(x []float64) float64 {
	return g.dist.LogProb(x)
}

var errNotPosDef = errCov{}

type errCov struct{}

func (errCov) Error() string { return "covariance matrix is not positive definite" }

// UnivariateGaussian adapts distuv.Normal (mean/std-dev parametrized) to
// LogProber for scalar observations.
type UnivariateGaussian struct {
	dist distuv.Normal
}

// NewUnivariateGaussian builds a scalar Gaussian LogProber.
func NewUnivariateGaussian(mean, stdDev float64) *UnivariateGaussian {
	return &UnivariateGaussian{dist: distuv.Normal{Mu: mean, Sigma: stdDev}}
}

// LogProb implements LogProber. x must have length 1.
func (u *UnivariateGaussian) LogProb(x []float64) float64 {
	return u.dist.LogProb(x[0])
}

// ScaledT adapts a scaled, shifted Student's-t distribution to LogProber,
// as used by the Gamma filter's predictive density.
type ScaledT struct {
	dist distuv.StudentsT
}

// NewScaledT builds a scalar scaled-t LogProber with location mu, scale
// sigma and nu degrees of freedom.
func NewScaledT(mu, sigma, nu float64) *ScaledT {
	return &ScaledT{dist: distuv.StudentsT{Mu: mu, Sigma: sigma, Nu: nu}}
}

// LogProb implements LogProber. x must have length 1.
func (s *ScaledT) LogProb(x []float64) float64 {
	return s.dist.LogProb(x[0])
}

// Categorical adapts a discrete probability mass function over a fixed
// alphabet to LogProber; x[0] is truncated to an index.
type Categorical struct {
	logP []float64
}

// NewCategorical builds a Categorical LogProber from unnormalized weights
// p, normalizing them first.
func NewCategorical(p []float64) *Categorical {
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	logP := make([]float64, len(p))
	for i, v := range p {
		logP[i] = math.Log(v / sum)
	}
	return &Categorical{logP: logP}
}

// LogProb implements LogProber.
func (c *Categorical) LogProb(x []float64) float64 {
	idx := int(x[0])
	if idx < 0 || idx >= len(c.logP) {
		return math.Inf(-1)
	}
	return c.logP[idx]
}
