// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricCosine: 1 - cos(a, b); 1.0 when either vector has zero norm
//   - MetricEuclidean: sqrt(sum((a_i - b_i)^2))
//   - MetricDot: -dot(a, b), so that smaller is closer for every metric
//
// # Usage
//
//	d, err := distance.Distance(a, b, distance.MetricCosine)
//	sim := distance.DotProduct(a, b)     // raw similarity, not negated
//	fn := distance.Func(distance.MetricL2) // unchecked, for hot loops
package distance
