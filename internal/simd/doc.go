// Package simd provides the float32 kernels behind the distance package.
//
// The kernels are written in portable Go with four independent accumulators so
// the compiler can keep them in registers and pipeline the multiply-adds.
// Products are accumulated in float64: a float32×float32 product is exact in
// float64, so the only rounding left is in the summation.
//
// None of the kernels allocate and none check lengths; callers must pass
// slices of equal length.
package simd
