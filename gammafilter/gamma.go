// Package gammafilter implements the conjugate Gamma precision filter:
// a discounted Bayesian update for an unknown observation precision under
// a zero-mean Normal likelihood, plus its multivariate-response variant.
//
// Like hmm.Filter and unlike kalman.KF, Filter does not implement pf.Filter:
// its state is a scalar precision, not a vector propagated through a
// Propagate/Observe pair, so forcing it onto that interface would buy
// nothing. It exposes Predict/Update directly in terms of the Gamma
// shape/rate parameters instead.
package gammafilter

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInsufficientDOF is returned when the discounted prior has too few
// degrees of freedom (2*alphaPred) for the requested quantity of the
// Student's-t predictive: MultivariateFilter.ForecastMean needs more than
// 1 and MultivariateFilter.ForecastCov more than 2. The ForecastLogLikelihood
// methods return it only for alphaPred <= 0, which New's positivity checks
// rule out. The
// original C++ multivGamFilter::getFcastMean/getFcastCov left this case
// undefined; this port returns the error instead of silently returning
// garbage (see DESIGN.md).
var ErrInsufficientDOF = fmt.Errorf("insufficient degrees of freedom for forecast distribution")

// Filter is a scalar conjugate Gamma precision filter:
//
//	y_t | lambda_t ~ Normal(0, 1/lambda_t)
//	lambda_t       ~ Gamma(alpha_t, beta_t)
//
// with power discounting delta applied to (alpha, beta) between
// observations, the standard way of letting old information decay in a
// dynamic generalized linear model.
type Filter struct {
	alpha, beta float64
	delta       float64
}

// New creates a Filter with prior shape alpha0, rate beta0 and discount
// factor delta in (0, 1].
func New(alpha0, beta0, delta float64) (*Filter, error) {
	if alpha0 <= 0 || beta0 <= 0 {
		return nil, fmt.Errorf("invalid gamma prior: alpha=%f beta=%f", alpha0, beta0)
	}
	if delta <= 0 || delta > 1 {
		return nil, fmt.Errorf("invalid discount factor: %f", delta)
	}

	return &Filter{alpha: alpha0, beta: beta0, delta: delta}, nil
}

// Predict returns the discounted (alpha, beta) the filter will condition
// on for the next observation, without mutating filter state.
func (f *Filter) Predict() (alphaPred, betaPred float64) {
	return f.delta * f.alpha, f.delta * f.beta
}

// Update conditions the filter on observation y and returns the posterior
// mean and variance of the precision.
func (f *Filter) Update(y float64) (mean, variance float64) {
	alphaPred, betaPred := f.Predict()

	f.alpha = alphaPred + 0.5
	f.beta = betaPred + 0.5*y*y

	return f.Mean(), f.Variance()
}

// Mean returns the posterior mean of the precision, alpha/beta.
func (f *Filter) Mean() float64 {
	return f.alpha / f.beta
}

// Variance returns the posterior variance of the precision,
// alpha/beta^2.
func (f *Filter) Variance() float64 {
	return f.alpha / (f.beta * f.beta)
}

// Params returns the current (alpha, beta) shape/rate pair.
func (f *Filter) Params() (alpha, beta float64) {
	return f.alpha, f.beta
}

// ForecastLogLikelihood returns the log predictive density of y under the
// discounted prior, a scaled Student's-t distribution with 2*alphaPred
// degrees of freedom. It returns ErrInsufficientDOF if the discounted
// prior has non-positive degrees of freedom.
func (f *Filter) ForecastLogLikelihood(y float64) (float64, error) {
	alphaPred, betaPred := f.Predict()
	if alphaPred <= 0 {
		return 0, ErrInsufficientDOF
	}

	dof := 2 * alphaPred
	scale := math.Sqrt(betaPred / alphaPred)
	t := distuv.StudentsT{
		Mu:    0,
		Sigma: scale,
		Nu:    dof,
		Src:   rand.NewSource(1),
	}

	return t.LogProb(y), nil
}
