// Package searcher provides the scratch structures used by graph search and
// result merging:
//   - CandidateList: bounded, sorted beam with expansion flags
//   - Heap: generic 4-ary heap
//   - Visited: pooled visited set for sparse ids
//
// Ordering is always ascending distance with ties broken by ascending id, so
// equal inputs produce equal outputs regardless of insertion order.
package searcher
