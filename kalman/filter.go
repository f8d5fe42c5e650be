package kalman

import (
	"fmt"
	"math"

	pf "github.com/milosgajdos/go-smc"
	"github.com/milosgajdos/go-smc/estimate"
	"github.com/milosgajdos/go-smc/noise"
	"gonum.org/v1/gonum/mat"
)

// KF is a discrete-time linear-Gaussian Kalman filter.
type KF struct {
	m     pf.DiscreteControlSystem
	q     pf.Noise
	r     pf.Noise
	p     *mat.SymDense
	pNext *mat.SymDense
	inn   *mat.VecDense
	k     *mat.Dense
	logCL float64
}

// New creates a new KF for model m with initial condition init, process
// noise q and measurement noise r (either may be nil, in which case no
// noise is added). It returns an error if the model dimensions or the
// noise covariances are inconsistent.
func New(m pf.DiscreteControlSystem, init pf.InitCond, q, r pf.Noise) (*KF, error) {
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if q != nil {
		if q.Cov().Symmetric() != nx {
			return nil, fmt.Errorf("invalid state noise dimension: %d", q.Cov().Symmetric())
		}
	} else {
		q, _ = noise.NewNone()
	}

	if r != nil {
		if r.Cov().Symmetric() != ny {
			return nil, fmt.Errorf("invalid output noise dimension: %d", r.Cov().Symmetric())
		}
	} else {
		r, _ = noise.NewNone()
	}

	p := mat.NewSymDense(init.Cov().Symmetric(), nil)
	p.CopySym(init.Cov())

	pNext := mat.NewSymDense(init.Cov().Symmetric(), nil)

	return &KF{
		m:     m,
		q:     q,
		r:     r,
		p:     p,
		pNext: pNext,
		inn:   mat.NewVecDense(ny, nil),
		k:     mat.NewDense(nx, ny, nil),
	}, nil
}

// Predict propagates state x and its covariance one step ahead given
// control input u.
func (k *KF) Predict(x, u mat.Vector) (pf.Estimate, error) {
	xNext, err := k.m.Propagate(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %v", err)
	}

	cov := &mat.Dense{}
	cov.Mul(k.m.SystemMatrix(), k.p)
	cov.Mul(cov, k.m.SystemMatrix().T())

	if _, ok := k.q.(*noise.None); !ok {
		cov.Add(cov, k.q.Cov())
	}

	n := k.pNext.Symmetric()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.pNext.SetSym(i, j, cov.At(i, j))
		}
	}

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Update corrects state x against measurement z given control input u,
// returning the corrected estimate. It also updates the filter's Kalman
// gain and log conditional likelihood.
func (k *KF) Update(x, u, z mat.Vector) (pf.Estimate, error) {
	nx, _, ny, _ := k.m.SystemDims()

	if z.Len() != ny {
		return nil, fmt.Errorf("invalid measurement supplied: %v", z)
	}

	yNext, err := k.m.Observe(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to observe system output: %v", err)
	}

	pxy := mat.NewDense(nx, ny, nil)
	pyy := mat.NewDense(ny, ny, nil)

	pxy.Mul(k.pNext, k.m.OutputMatrix().T())
	pyy.Mul(k.m.OutputMatrix(), pxy)
	if _, ok := k.r.(*noise.None); !ok {
		pyy.Add(pyy, k.r.Cov())
	}

	pyySym, err := toSym(pyy)
	if err != nil {
		return nil, fmt.Errorf("predicted output covariance is not symmetric: %v", err)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(pyySym); !ok {
		return nil, fmt.Errorf("failed to factorize predicted output covariance")
	}

	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyySym); err != nil {
		return nil, fmt.Errorf("failed to calculate Pyy inverse: %v", err)
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	inn := &mat.VecDense{}
	inn.SubVec(z, yNext)

	var logDet float64
	logDet = chol.LogDet()
	mahalanobis := mat.Inner(inn, pyyInv, inn)
	k.logCL = -0.5 * (float64(ny)*math.Log(2*math.Pi) + logDet + mahalanobis)

	corr := &mat.Dense{}
	corr.Mul(gain, inn)
	xCorr := &mat.VecDense{}
	xCorr.AddVec(x, corr.ColView(0))

	eye := mat.NewDiagDense(nx, nil)
	for i := 0; i < nx; i++ {
		eye.SetDiag(i, 1.0)
	}
	a := &mat.Dense{}
	a.Mul(gain, k.m.OutputMatrix())
	a.Sub(eye, a)

	pkrk := &mat.Dense{}
	if _, ok := k.r.(*noise.None); !ok {
		kr := &mat.Dense{}
		kr.Mul(gain, k.r.Cov())
		pkrk.Mul(kr, gain.T())
	}

	ap := &mat.Dense{}
	ap.Mul(a, k.pNext)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	pCorr := &mat.Dense{}
	if !pkrk.IsEmpty() {
		pCorr.Add(apa, pkrk)
	} else {
		pCorr.CloneFrom(apa)
	}

	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	for i := 0; i < nx; i++ {
		for j := i; j < nx; j++ {
			k.p.SetSym(i, j, pCorr.At(i, j))
		}
	}

	return estimate.NewBaseWithCov(xCorr, k.p)
}

// Run runs one Predict/Update cycle.
func (k *KF) Run(x, u, z mat.Vector) (pf.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	return k.Update(pred.State(), u, z)
}

// Cov returns the filter's current state covariance.
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.Symmetric(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov overrides the filter's state covariance, e.g. when reinitializing
// the filter after a resample in an RBPF composite.
func (k *KF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if cov.Symmetric() != k.p.Symmetric() {
		return fmt.Errorf("invalid covariance matrix dims: [%d x %d]", cov.Symmetric(), cov.Symmetric())
	}

	k.p.CopySym(cov)

	return nil
}

// Model returns the KF's system model.
func (k *KF) Model() pf.DiscreteControlSystem {
	return k.m
}

// StateNoise returns the KF's process noise source.
func (k *KF) StateNoise() pf.Noise {
	return k.q
}

// OutputNoise returns the KF's measurement noise source.
func (k *KF) OutputNoise() pf.Noise {
	return k.r
}

// Gain returns the most recently computed Kalman gain.
func (k *KF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// LogLikelihood returns the log conditional likelihood of the last
// observation given all previous ones.
func (k *KF) LogLikelihood() float64 {
	return k.logCL
}

// Clone returns a deep copy of the filter's mutable numeric state, sharing
// the immutable model and noise sources. It is used by Rao-Blackwellized
// particle filters, which carry one inner KF per particle and must fork it
// independently across ancestors on resample.
func (k *KF) Clone() *KF {
	p := mat.NewSymDense(k.p.Symmetric(), nil)
	p.CopySym(k.p)

	pNext := mat.NewSymDense(k.pNext.Symmetric(), nil)
	pNext.CopySym(k.pNext)

	inn := mat.NewVecDense(k.inn.Len(), nil)
	inn.CopyVec(k.inn)

	kk := &mat.Dense{}
	kk.CloneFrom(k.k)

	return &KF{
		m:     k.m,
		q:     k.q,
		r:     k.r,
		p:     p,
		pNext: pNext,
		inn:   inn,
		k:     kk,
		logCL: k.logCL,
	}
}

func toSym(m *mat.Dense) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("matrix must be square: [%d x %d]", r, c)
	}
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = 0.5 * (m.At(i, j) + m.At(j, i))
		}
	}
	return mat.NewSymDense(r, data), nil
}
