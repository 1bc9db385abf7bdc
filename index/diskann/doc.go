// Package diskann implements a mutable Vamana graph index (FreshDiskANN style).
//
// The index holds only record ids. Vectors are resolved through a VectorSource
// (normally the vectorstore.Store), so the graph never keeps a second copy of
// live data.
//
// # Algorithm
//
// Building:
//   - Seed the graph with the medoid of the input records
//   - Insert each record: greedy beam search for candidates, RobustPrune to
//     MaxDegree with the diversity factor Alpha, add reverse edges and re-prune
//     neighbors that overflow
//
// Search:
//   - Beam search from the entry point with a bounded search list
//   - Tombstoned and stale nodes are traversed but never returned
//
// Deletes:
//   - Delete tombstones a node (lazy removal)
//   - Repair removes tombstoned nodes, rewires their in-neighbors through the
//     removed node's out-neighbors, and connects the removed node's neighbors
//     pairwise while they are under MaxDegree
//
// # States
//
//	Empty -> Building -> Ready -> Degraded -> Ready -> Closed
//
// An index becomes Degraded when the tombstone ratio exceeds
// Config.DegradedRatio or when Build is cancelled. Degraded indexes remain
// fully queryable with potentially reduced recall.
//
// # Concurrency
//
// Adjacency lists are published through atomic pointers (copy-on-write), so
// searches never take locks on the graph. Writers lock the nodes they modify in
// increasing id order.
package diskann
