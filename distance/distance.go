package distance

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/vectier/internal/simd"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// DimensionMismatchError carries the expected and actual vector lengths.
// It matches ErrDimensionMismatch via errors.Is.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricDot
)

// MetricL2 is an alias for MetricEuclidean.
const MetricL2 = MetricEuclidean

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m >= MetricCosine && m <= MetricDot
}

// ParseMetric parses a metric name ("cosine", "euclidean"/"l2", "dot").
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cos":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unsupported metric: %q", s)
	}
}

// FuncType is the signature of an unchecked distance function.
type FuncType func(a, b []float32) float32

// Func returns the distance function for the given metric.
// The returned function does not check lengths; callers must guarantee
// len(a) == len(b). Unknown metrics fall back to cosine.
func Func(m Metric) FuncType {
	switch m {
	case MetricEuclidean:
		return simd.L2
	case MetricDot:
		return negDot
	default:
		return simd.CosineDistance
	}
}

// Distance computes the distance between a and b under metric m.
// Smaller values mean closer vectors for every metric.
func Distance(a, b []float32, m Metric) (float32, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}
	if !m.Valid() {
		return 0, fmt.Errorf("unsupported metric: %v", m)
	}
	return Func(m)(a, b), nil
}

// Cosine returns the cosine distance between a and b.
// Assumes vectors are the same length (caller's responsibility).
func Cosine(a, b []float32) float32 {
	return simd.CosineDistance(a, b)
}

// Euclidean returns the Euclidean distance between a and b.
// Assumes vectors are the same length (caller's responsibility).
func Euclidean(a, b []float32) float32 {
	return simd.L2(a, b)
}

// DotProduct returns the raw (un-negated) dot product of a and b.
// Assumes vectors are the same length (caller's responsibility).
func DotProduct(a, b []float32) float32 {
	return simd.Dot(a, b)
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return simd.Norm(v)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	n := simd.Norm(v)
	if n == 0 {
		return false
	}
	simd.ScaleInPlace(v, 1/n)
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

func negDot(a, b []float32) float32 {
	return -simd.Dot(a, b)
}
