package resample

import (
	"fmt"
	"sort"

	"golang.org/x/exp/rand"
)

// HilbertEncode maps a d-dimensional lattice point (one coordinate per
// axis, each in [0, 2^order)) to its index along the Hilbert curve of the
// given order, using Skilling's transpose/Gray-code construction. d is
// len(axes) and may be 2, 3, or more, as long as order*d does not exceed
// 64 bits.
func HilbertEncode(order uint, axes ...uint32) uint64 {
	x := make([]uint64, len(axes))
	for i, a := range axes {
		x[i] = uint64(a)
	}
	axesToTranspose(order, x)
	return interleave(order, x)
}

// HilbertDecode is the inverse of HilbertEncode for a curve of the given
// order and dimension d: HilbertDecode(order, d, HilbertEncode(order,
// axes...)) reproduces axes for every axes of length d with entries in
// [0, 2^order).
func HilbertDecode(order uint, d uint, h uint64) []uint32 {
	x := deinterleave(order, d, h)
	transposeToAxes(order, x)

	out := make([]uint32, d)
	for i, v := range x {
		out[i] = uint32(v)
	}
	return out
}

// axesToTranspose converts axis coordinates in x into Hilbert transpose
// form in place: Skilling's "inverse undo" exchange step followed by Gray
// encoding. This is the encode-direction half of the transform.
func axesToTranspose(order uint, x []uint64) {
	n := len(x)
	m := uint64(1) << (order - 1)

	for q := m; q > 1; q >>= 1 {
		p := q - 1
		for i := 0; i < n; i++ {
			if x[i]&q != 0 {
				x[0] ^= p
			} else {
				t := (x[0] ^ x[i]) & p
				x[0] ^= t
				x[i] ^= t
			}
		}
	}

	for i := 1; i < n; i++ {
		x[i] ^= x[i-1]
	}
	var t uint64
	for q := m; q > 1; q >>= 1 {
		if x[n-1]&q != 0 {
			t ^= q - 1
		}
	}
	for i := 0; i < n; i++ {
		x[i] ^= t
	}
}

// transposeToAxes is the inverse of axesToTranspose: Gray decoding
// followed by undoing the exchange step, recovering axis coordinates from
// Hilbert transpose form.
func transposeToAxes(order uint, x []uint64) {
	n := len(x)
	m := uint64(1) << order

	t := x[n-1] >> 1
	for i := n - 1; i >= 1; i-- {
		x[i] ^= x[i-1]
	}
	x[0] ^= t

	for q := uint64(2); q != m; q <<= 1 {
		p := q - 1
		for i := n - 1; i >= 0; i-- {
			if x[i]&q != 0 {
				x[0] ^= p
			} else {
				t := (x[0] ^ x[i]) & p
				x[0] ^= t
				x[i] ^= t
			}
		}
	}
}

// interleave packs the order-bit coordinates in x, one bit per axis per
// round (MSB first), into a single order*len(x)-bit integer.
func interleave(order uint, x []uint64) uint64 {
	n := uint(len(x))
	var h uint64
	for i := uint(0); i < order*n; i++ {
		bit := (x[i%n] >> (order - 1 - i/n)) & 1
		h = (h << 1) | bit
	}
	return h
}

// deinterleave is the inverse of interleave, given the curve order and
// dimension d.
func deinterleave(order, d uint, h uint64) []uint64 {
	x := make([]uint64, d)
	total := order * d
	for i := uint(0); i < total; i++ {
		bit := (h >> (total - 1 - i)) & 1
		axis := i % d
		pos := order - 1 - i/d
		x[axis] |= bit << pos
	}
	return x
}

// PositionalResampler is implemented by resamplers (currently only
// Hilbert) whose ordering depends on particle state rather than weight
// alone. A filter holding a resampler that satisfies this interface
// should resample via ResamplePositions, passing the particle ensemble's
// coordinates, instead of the plain Resampler.Resample entry point.
type PositionalResampler interface {
	Resampler
	// ResamplePositions resamples logWeights, using positions (one
	// coordinate slice per axis, up to 3 axes) to build the Hilbert
	// ordering, and u0 as the externally supplied systematic offset in
	// [0, 1/N).
	ResamplePositions(positions [][]float64, logWeights []float64, u0 float64) ([]int, error)
}

// Hilbert resampling sorts the particles along a Hilbert curve built from
// their d_x-dimensional state (up to 3 axes), then performs a single
// systematic draw over the resulting order. Sorting on location keeps
// spatially close particles close in resampling order, which lowers
// resampling variance relative to sorting on weight alone.
//
// Order controls the resolution of the curve; Order 16 (65536-point side
// per axis) is enough resolution for any realistic particle count.
type Hilbert struct {
	Order uint
}

// NewHilbert returns a Hilbert resampler with a default curve order.
func NewHilbert() Hilbert {
	return Hilbert{Order: 16}
}

// Resample implements Resampler. With no particle locations available it
// falls back to a single axis built from particle index, degrading to a
// plain systematic resample; callers that have particle positions should
// call ResamplePositions (or resample.Indices) instead.
func (h Hilbert) Resample(rng *rand.Rand, logWeights []float64) ([]int, error) {
	n := len(logWeights)
	if n == 0 {
		return nil, checkWeights(logWeights)
	}
	positions := make([]float64, n)
	for i := range positions {
		positions[i] = float64(i)
	}
	return h.ResamplePositions([][]float64{positions}, logWeights, rng.Float64()/float64(n))
}

// ResamplePositions resamples logWeights, sorting the particles along a
// Hilbert curve built from positions (one coordinate slice per axis), and
// applying systematic resampling with the externally supplied offset u0.
// At most the first 3 axes are used; spec.md's testable property 3 only
// requires d_x in {2, 3}.
func (h Hilbert) ResamplePositions(positions [][]float64, logWeights []float64, u0 float64) ([]int, error) {
	if err := checkWeights(logWeights); err != nil {
		return nil, err
	}
	n := len(logWeights)
	for a, axis := range positions {
		if len(axis) != n {
			return nil, fmt.Errorf("position axis %d/log-weights length mismatch: %d != %d", a, len(axis), n)
		}
	}

	naxes := len(positions)
	if naxes == 0 {
		naxes = 1
		positions = [][]float64{make([]float64, n)}
	} else if naxes > 3 {
		naxes = 3
		positions = positions[:3]
	}

	order := h.Order
	if order == 0 {
		order = 16
	}
	side := uint32(1) << order

	ranks := make([][]uint32, naxes)
	for a, axis := range positions {
		ranks[a] = rankTransform(axis, side)
	}

	type keyed struct {
		idx int
		key uint64
	}
	ks := make([]keyed, n)
	for i := 0; i < n; i++ {
		coords := make([]uint32, naxes)
		for a := 0; a < naxes; a++ {
			coords[a] = ranks[a][i]
		}
		ks[i] = keyed{idx: i, key: HilbertEncode(order, coords...)}
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i].key < ks[j].key })

	sortedLogW := make([]float64, n)
	for i, k := range ks {
		sortedLogW[i] = logWeights[k.idx]
	}

	sys := Systematic{}
	picks, err := sys.ResampleU(sortedLogW, u0)
	if err != nil {
		return nil, err
	}

	indices := make([]int, n)
	for i, p := range picks {
		indices[i] = ks[p].idx
	}

	return indices, nil
}

// rankTransform maps each value in xs to its rank, scaled into
// [0, side), breaking ties by original index so the mapping is total.
func rankTransform(xs []float64, side uint32) []uint32 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return xs[idx[i]] < xs[idx[j]] })

	out := make([]uint32, n)
	for rank, i := range idx {
		v := uint32(0)
		if n > 1 {
			v = uint32(float64(rank) / float64(n-1) * float64(side-1))
		}
		out[i] = v
	}
	return out
}
