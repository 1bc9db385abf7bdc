package simd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Unrolled", []float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, []float32{2, 2, 2, 2, 2, 2, 2, 2, 2}, 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-5)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	assert.InDelta(t, float32(27), SquaredL2([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)
	assert.InDelta(t, float32(8), SquaredL2([]float32{1, -1}, []float32{-1, 1}), 1e-5)
	assert.Equal(t, float32(0), SquaredL2([]float32{1, 2, 3, 4, 5}, []float32{1, 2, 3, 4, 5}))
	assert.InDelta(t, float32(5), L2([]float32{0, 0}, []float32{3, 4}), 1e-6)
}

func TestCosineDistance(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		a := []float32{0.3, -1.7, 2.2, 9.1, 0.01}
		assert.Equal(t, float32(0), CosineDistance(a, a))
	})

	t.Run("Orthogonal", func(t *testing.T) {
		assert.InDelta(t, float32(1), CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("Opposite", func(t *testing.T) {
		assert.InDelta(t, float32(2), CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	})

	t.Run("ZeroNorm", func(t *testing.T) {
		assert.Equal(t, float32(1), CosineDistance([]float32{0, 0}, []float32{1, 0}))
		assert.Equal(t, float32(1), CosineDistance([]float32{1, 0}, []float32{0, 0}))
	})

	t.Run("IgnoresMagnitude", func(t *testing.T) {
		assert.InDelta(t, CosineDistance([]float32{1, 2}, []float32{3, 1}), CosineDistance([]float32{10, 20}, []float32{3, 1}), 1e-6)
	})
}

func TestNormAndScale(t *testing.T) {
	v := []float32{3, 4}
	assert.InDelta(t, float32(5), Norm(v), 1e-6)

	ScaleInPlace(v, 0.5)
	assert.Equal(t, []float32{1.5, 2}, v)
	assert.False(t, math.IsNaN(float64(Norm([]float32{}))))
}

func TestKernelsDoNotAllocate(t *testing.T) {
	a := make([]float32, 768)
	b := make([]float32, 768)
	for i := range a {
		a[i] = float32(i)
		b[i] = float32(768 - i)
	}

	allocs := testing.AllocsPerRun(100, func() {
		_ = Dot(a, b)
		_ = SquaredL2(a, b)
		_ = CosineDistance(a, b)
	})
	assert.Zero(t, allocs)
}
