package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func uniformLogW(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = -math.Log(float64(n))
	}
	return w
}

func allResamplers() map[string]Resampler {
	return map[string]Resampler{
		"multinomial":     Multinomial{},
		"fastmultinomial": FastMultinomial{},
		"residual":        Residual{},
		"stratified":      Stratified{},
		"systematic":      Systematic{},
		"hilbert":         NewHilbert(),
	}
}

func TestResamplersShapePreserving(t *testing.T) {
	assert := assert.New(t)

	logW := []float64{math.Log(0.1), math.Log(0.2), math.Log(0.3), math.Log(0.4)}
	for name, r := range allResamplers() {
		idx, err := r.Resample(newRNG(), logW)
		assert.NoError(err, name)
		assert.Equal(len(logW), len(idx), name)
		for _, i := range idx {
			assert.True(i >= 0 && i < len(logW), name)
		}
	}
}

func TestResamplersEmptyWeights(t *testing.T) {
	assert := assert.New(t)

	for name, r := range allResamplers() {
		idx, err := r.Resample(newRNG(), nil)
		assert.Error(err, name)
		assert.Nil(idx, name)
	}
}

func TestResamplersSelectivity(t *testing.T) {
	assert := assert.New(t)

	// one particle carries essentially all the mass: every resampler
	// should pick it (almost) every time.
	logW := []float64{math.Log(1e-12), math.Log(1e-12), 0, math.Log(1e-12)}
	for name, r := range allResamplers() {
		idx, err := r.Resample(newRNG(), logW)
		assert.NoError(err, name)
		count := 0
		for _, i := range idx {
			if i == 2 {
				count++
			}
		}
		assert.True(count >= len(idx)-1, "%s: expected dominant particle to be picked almost always, got %v", name, idx)
	}
}

func TestUniformLogWeights(t *testing.T) {
	assert := assert.New(t)

	w := UniformLogWeights(4)
	sum := 0.0
	for _, lw := range w {
		sum += math.Exp(lw)
	}
	assert.InDelta(1.0, sum, 1e-9)
}

func TestSystematicResampleU(t *testing.T) {
	assert := assert.New(t)

	logW := uniformLogW(4)
	idx, err := (Systematic{}).ResampleU(logW, 0.1)
	assert.NoError(err)
	assert.Equal([]int{0, 1, 2, 3}, idx)
}

func TestHilbertRoundTrip(t *testing.T) {
	assert := assert.New(t)

	order := uint(8)
	side := uint32(1) << order
	for x := uint32(0); x < side; x += 7 {
		for y := uint32(0); y < side; y += 11 {
			d := HilbertEncode(order, x, y)
			got := HilbertDecode(order, 2, d)
			assert.Equal([]uint32{x, y}, got)
		}
	}
}

func TestHilbertRoundTripAllPoints(t *testing.T) {
	assert := assert.New(t)

	order := uint(4)
	side := uint32(1) << order
	seen := make(map[uint64]bool)
	for x := uint32(0); x < side; x++ {
		for y := uint32(0); y < side; y++ {
			d := HilbertEncode(order, x, y)
			assert.False(seen[d], "duplicate Hilbert index %d", d)
			seen[d] = true
			got := HilbertDecode(order, 2, d)
			assert.Equal([]uint32{x, y}, got)
		}
	}
}

// TestHilbertRoundTrip3D exercises the d_x=3 case spec.md's testable
// property 3 requires alongside d_x=2.
func TestHilbertRoundTrip3D(t *testing.T) {
	assert := assert.New(t)

	order := uint(5)
	side := uint32(1) << order
	for x := uint32(0); x < side; x += 3 {
		for y := uint32(0); y < side; y += 5 {
			for z := uint32(0); z < side; z += 7 {
				d := HilbertEncode(order, x, y, z)
				got := HilbertDecode(order, 3, d)
				assert.Equal([]uint32{x, y, z}, got)
			}
		}
	}
}

// TestHilbertResamplePositionsSortsOnState verifies that ResamplePositions
// (the path resample.Indices takes for a Hilbert resampler) actually
// depends on particle location, not weight: two ensembles with identical
// weights but different positions produce different resample orderings.
func TestHilbertResamplePositionsSortsOnState(t *testing.T) {
	assert := assert.New(t)

	logW := uniformLogW(6)
	h := NewHilbert()

	posA := [][]float64{{0, 1, 2, 3, 4, 5}}
	posB := [][]float64{{5, 4, 3, 2, 1, 0}}

	idxA, err := h.ResamplePositions(posA, logW, 0.01)
	assert.NoError(err)
	idxB, err := h.ResamplePositions(posB, logW, 0.01)
	assert.NoError(err)

	assert.NotEqual(idxA, idxB)
}

func TestKGen(t *testing.T) {
	assert := assert.New(t)

	logW := []float64{math.Log(0.25), math.Log(0.25), math.Log(0.25), math.Log(0.25)}
	idx, err := KGen(newRNG(), logW, 10)
	assert.NoError(err)
	assert.Equal(10, len(idx))
	for _, i := range idx {
		assert.True(i >= 0 && i < 4)
	}
}
