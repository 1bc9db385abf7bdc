// Package testutil provides testing utilities for vectier.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors and records, computing
// exact nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 64)
//	recs := testutil.Records(vecs, 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForce(recs, query, k, distance.MetricCosine)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
