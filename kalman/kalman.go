// Package kalman implements the linear-Gaussian Kalman filter used both
// standalone and as the inner closed-form filter of the RBPF-Kalman
// composite.
package kalman

import (
	pf "github.com/milosgajdos/go-smc"
	"gonum.org/v1/gonum/mat"
)

// Filter is a Kalman filter: pf.Filter plus the extra state the closed
// form exposes (covariance, gain, conditional log-likelihood).
type Filter interface {
	pf.Filter
	// Cov returns the filter's current state covariance.
	Cov() mat.Symmetric
	// Gain returns the most recently computed Kalman gain.
	Gain() mat.Matrix
	// LogLikelihood returns the log conditional likelihood of the last
	// observation given all previous ones.
	LogLikelihood() float64
}
