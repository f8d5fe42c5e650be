package particle

import (
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Covariance estimates the empirical covariance of a particle cloud stored
// as columns of x, ignoring particle weights. It is a cheap diagnostic for
// monitoring ensemble spread (e.g. collapse after aggressive resampling)
// alongside the weighted posterior mean each filter already reports.
func Covariance(x mat.Matrix) (*mat.SymDense, error) {
	dense, ok := x.(*mat.Dense)
	if !ok {
		dense = mat.DenseCopyOf(x)
	}
	return matrix.Cov(dense, "cols")
}

// Covariance estimates the empirical covariance of the current particle
// cloud. See Covariance for details.
func (b *Bootstrap) Covariance() (*mat.SymDense, error) {
	return Covariance(b.x)
}

// Covariance estimates the empirical covariance of the current particle
// cloud. See Covariance for details.
func (s *SISR) Covariance() (*mat.SymDense, error) {
	return Covariance(s.x)
}

// Covariance estimates the empirical covariance of the current particle
// cloud. See Covariance for details.
func (s *SISRCRN) Covariance() (*mat.SymDense, error) {
	return Covariance(s.x)
}

// Covariance estimates the empirical covariance of the current particle
// cloud. See Covariance for details.
func (a *APF) Covariance() (*mat.SymDense, error) {
	return Covariance(a.x)
}
