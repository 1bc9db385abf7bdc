package simd

import "math"

// Dot calculates the dot product of two vectors.
//
// SAFETY: This function assumes len(a) == len(b).
func Dot(a, b []float32) float32 {
	return float32(dot64(a, b))
}

// SquaredL2 calculates the squared L2 distance.
//
// SAFETY: This function assumes len(a) == len(b).
func SquaredL2(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3 float64
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := float64(a[i]) - float64(b[i])
		d1 := float64(a[i+1]) - float64(b[i+1])
		d2 := float64(a[i+2]) - float64(b[i+2])
		d3 := float64(a[i+3]) - float64(b[i+3])
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		s0 += d * d
	}
	return float32((s0 + s1) + (s2 + s3))
}

// L2 calculates the Euclidean distance.
func L2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// Norm returns the L2 norm of a.
func Norm(a []float32) float32 {
	return float32(math.Sqrt(dot64(a, a)))
}

// CosineDistance returns 1 - cos(a, b), computing the dot product and both
// norms in a single pass. Zero-norm inputs yield 1.
func CosineDistance(a, b []float32) float32 {
	n := len(a)
	b = b[:n]

	var d0, d1, na0, na1, nb0, nb1 float64
	i := 0
	for ; i+2 <= n; i += 2 {
		x0, y0 := float64(a[i]), float64(b[i])
		x1, y1 := float64(a[i+1]), float64(b[i+1])
		d0 += x0 * y0
		d1 += x1 * y1
		na0 += x0 * x0
		na1 += x1 * x1
		nb0 += y0 * y0
		nb1 += y1 * y1
	}
	for ; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		d0 += x * y
		na0 += x * x
		nb0 += y * y
	}

	na, nb := na0+na1, nb0+nb1
	if na == 0 || nb == 0 {
		return 1
	}
	// sqrt(x*x) == x in IEEE arithmetic, so cos(a, a) is exactly 1.
	cos := (d0 + d1) / math.Sqrt(na*nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return float32(1 - cos)
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

func dot64(a, b []float32) float64 {
	n := len(a)
	b = b[:n]

	var s0, s1, s2, s3 float64
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += float64(a[i]) * float64(b[i])
		s1 += float64(a[i+1]) * float64(b[i+1])
		s2 += float64(a[i+2]) * float64(b[i+2])
		s3 += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < n; i++ {
		s0 += float64(a[i]) * float64(b[i])
	}
	return (s0 + s1) + (s2 + s3)
}
