package gammafilter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MultivariateFilter is the multivariate-response analogue of Filter: a
// single scalar precision lambda scales a fixed, known correlation
// structure shared by every response dimension,
//
//	y_t | lambda_t ~ Normal(0, Sigma/lambda_t)
//	lambda_t       ~ Gamma(alpha_t, beta_t)
//
// Sigma is supplied once at construction and never updated; only the
// scalar (alpha, beta) pair evolves.
type MultivariateFilter struct {
	Filter
	sigma    *mat.SymDense
	sigmaInv *mat.Dense
	dim      int
}

// NewMultivariate creates a MultivariateFilter for a response of dimension
// sigma.Symmetric(), with prior shape alpha0, rate beta0 and discount
// factor delta.
func NewMultivariate(alpha0, beta0, delta float64, sigma *mat.SymDense) (*MultivariateFilter, error) {
	f, err := New(alpha0, beta0, delta)
	if err != nil {
		return nil, err
	}

	dim := sigma.Symmetric()
	inv := &mat.Dense{}
	if err := inv.Inverse(sigma); err != nil {
		return nil, fmt.Errorf("failed to invert response covariance: %v", err)
	}

	return &MultivariateFilter{Filter: *f, sigma: sigma, sigmaInv: inv, dim: dim}, nil
}

// Update conditions the filter on the vector observation y, reducing it
// to the scalar sufficient statistic y' * Sigma^-1 * y before delegating
// to the scalar Gamma update.
func (f *MultivariateFilter) Update(y mat.Vector) (mean, variance float64, err error) {
	if y.Len() != f.dim {
		return 0, 0, fmt.Errorf("invalid observation dimension: %d != %d", y.Len(), f.dim)
	}

	quad := mat.Inner(y, f.sigmaInv, y)

	alphaPred, betaPred := f.Filter.Predict()
	f.Filter.alpha = alphaPred + 0.5*float64(f.dim)
	f.Filter.beta = betaPred + 0.5*quad

	return f.Filter.Mean(), f.Filter.Variance(), nil
}

// ForecastMean returns the predictive mean response (always the zero
// vector, since the model is zero-mean). It returns ErrInsufficientDOF if
// the discounted prior has 2*alphaPred <= 1 degrees of freedom, where the
// Student's-t predictive has no mean. See ErrInsufficientDOF and
// DESIGN.md for why this returns an error instead of replicating the
// original's undefined behavior.
func (f *MultivariateFilter) ForecastMean() (*mat.VecDense, error) {
	alphaPred, _ := f.Filter.Predict()
	if 2*alphaPred <= 1 {
		return nil, ErrInsufficientDOF
	}
	return mat.NewVecDense(f.dim, nil), nil
}

// ForecastCov returns the predictive covariance of the response,
// betaPred/(alphaPred-1) * Sigma: the covariance of the Student's-t
// predictive with 2*alphaPred degrees of freedom and scale matrix
// (betaPred/alphaPred) * Sigma. It returns ErrInsufficientDOF if
// 2*alphaPred <= 2, where that covariance does not exist.
func (f *MultivariateFilter) ForecastCov() (*mat.SymDense, error) {
	alphaPred, betaPred := f.Filter.Predict()
	if alphaPred <= 1 {
		return nil, ErrInsufficientDOF
	}

	scale := betaPred / (alphaPred - 1)
	cov := mat.NewSymDense(f.dim, nil)
	for i := 0; i < f.dim; i++ {
		for j := i; j < f.dim; j++ {
			cov.SetSym(i, j, scale*f.sigma.At(i, j))
		}
	}
	return cov, nil
}

// ForecastLogLikelihood returns the log predictive density of y under a
// multivariate Student's-t with 2*alphaPred degrees of freedom, computed
// directly from the scalar sufficient statistic rather than via a full
// multivariate-t evaluator.
func (f *MultivariateFilter) ForecastLogLikelihood(y mat.Vector) (float64, error) {
	if y.Len() != f.dim {
		return 0, fmt.Errorf("invalid observation dimension: %d != %d", y.Len(), f.dim)
	}

	alphaPred, betaPred := f.Filter.Predict()
	if alphaPred <= 0 {
		return 0, ErrInsufficientDOF
	}

	quad := mat.Inner(y, f.sigmaInv, y)
	dof := 2 * alphaPred
	p := float64(f.dim)

	// multivariate Student's-t log density with scale matrix
	// (betaPred/alphaPred)*Sigma, derived from the same conjugate update
	// as the scalar case.
	logDetSigma := logDet(f.sigma)
	logNumer := lgamma((dof+p)/2) - lgamma(dof/2)
	logDenom := 0.5*p*math.Log(dof*math.Pi) + 0.5*logDetSigma + 0.5*p*math.Log(betaPred/alphaPred)
	logKernel := -0.5 * (dof + p) * math.Log(1+quad/(dof*(betaPred/alphaPred)))

	return logNumer - logDenom + logKernel, nil
}

func logDet(sigma *mat.SymDense) float64 {
	var chol mat.Cholesky
	chol.Factorize(sigma)
	return chol.LogDet()
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
