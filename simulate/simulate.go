// Package simulate generates a forward trajectory and its noisy
// observations from a pf.Model, a "truth" generator for driving filters
// against synthetic data.
package simulate

import (
	"fmt"

	pf "github.com/milosgajdos/go-smc"
	"gonum.org/v1/gonum/mat"
)

// Path runs model forward for steps time steps starting at x0, sampling
// process noise from q and measurement noise from r at every step, and
// driven by the control input ctrl(t) at step t. It returns the state and
// observation trajectories as dimx x steps and dimy x steps matrices
// respectively, one column per time step (t=1..steps).
func Path(model pf.Model, x0 mat.Vector, ctrl func(t int) mat.Vector, q, r pf.Noise, steps int) (states, obs *mat.Dense, err error) {
	if steps <= 0 {
		return nil, nil, fmt.Errorf("invalid step count: %d", steps)
	}
	if ctrl == nil {
		return nil, nil, fmt.Errorf("control input function must not be nil")
	}

	nx, ny := x0.Len(), 0

	x := mat.VecDenseCopyOf(x0)
	states = mat.NewDense(nx, steps, nil)

	for t := 0; t < steps; t++ {
		u := ctrl(t + 1)

		var qs mat.Vector
		if q != nil {
			qs = q.Sample()
		}

		xNext, err := model.Propagate(x, u, qs)
		if err != nil {
			return nil, nil, fmt.Errorf("state propagation failed at step %d: %v", t+1, err)
		}
		x = mat.VecDenseCopyOf(xNext)
		states.Slice(0, nx, t, t+1).(*mat.Dense).Copy(x)

		var rs mat.Vector
		if r != nil {
			rs = r.Sample()
		}

		y, err := model.Observe(x, u, rs)
		if err != nil {
			return nil, nil, fmt.Errorf("observation failed at step %d: %v", t+1, err)
		}
		if obs == nil {
			ny = y.Len()
			obs = mat.NewDense(ny, steps, nil)
		}
		obs.Slice(0, ny, t, t+1).(*mat.Dense).Copy(y)
	}

	return states, obs, nil
}
