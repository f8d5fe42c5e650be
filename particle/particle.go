// Package particle implements the four particle filter variants: the
// Bootstrap (SIR) filter, Sequential Importance Sampling with Resampling
// (SISR), its common-random-numbers variant (SISR-CRN), and the Auxiliary
// Particle Filter (APF). All four share the weighted-ensemble data model
// and log-sum-exp weight accounting described in SPEC_FULL.md.
package particle

import (
	pf "github.com/milosgajdos/go-smc"
	"gonum.org/v1/gonum/mat"
)

// Particle is a particle filter: pf.Filter plus read access to the
// weighted ensemble backing the estimate and the accumulated log
// conditional likelihood of the observed sequence. Bootstrap, SISR and
// APF satisfy it directly; SISRCRN does not, since its Update/Run take
// the externally supplied per-particle random vectors spec.md's CRN
// variant requires instead of the plain (x, u, z) triple.
type Particle interface {
	pf.Filter
	// Particles returns the current particle ensemble as a dimx x N
	// matrix, one particle per column.
	Particles() mat.Matrix
	// Weights returns the current normalized particle weights.
	Weights() mat.Vector
	// LogLikelihood returns the accumulated log conditional likelihood
	// of the observed sequence so far.
	LogLikelihood() float64
}
