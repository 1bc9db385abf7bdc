package diskann

import (
	"context"
	"slices"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
)

// Insert adds id to the graph, resolving its vector through the source.
//
// For an id already in the graph this is the update path: the node is
// re-searched with its current vector, re-pruned and reconnected. A tombstoned
// id is revived. Insert does not block concurrent searches.
func (idx *Index) Insert(ctx context.Context, id model.ID, tier model.TierID) error {
	if idx.isClosed() {
		return ErrClosed
	}

	vec, _, ok := idx.source.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	if dim := idx.source.Dimension(); len(vec) != dim {
		return &distance.DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}

	n := idx.getOrCreateNode(id, tier)
	idx.insertNode(ctx, n, vec)

	idx.casState(StateEmpty, StateReady)
	return nil
}

// Delete tombstones id. The node stays navigable until the next Repair but is
// never returned by a search. Deleting a tombstoned id is a no-op.
func (idx *Index) Delete(id model.ID) error {
	if idx.isClosed() {
		return ErrClosed
	}

	n := idx.node(id)
	if n == nil {
		return ErrNotFound
	}

	vec, _, _ := idx.source.Lookup(id)
	idx.tombstone(n, vec)
	return nil
}

// tombstone marks n deleted, keeping vec (may be nil) for navigation.
func (idx *Index) tombstone(n *node, vec []float32) {
	if vec == nil {
		vec, _ = idx.vectorOf(n)
	}
	if vec != nil {
		n.ghost.Store(&vec)
	}

	idx.tombMu.Lock()
	if n.tombstoned.Swap(true) {
		idx.tombMu.Unlock()
		return
	}
	idx.tombstones.Add(uint64(n.id))
	idx.tombCount.Add(1)
	idx.tombMu.Unlock()

	idx.checkDegraded()
}

func (idx *Index) revive(n *node) {
	if !n.tombstoned.Load() {
		return
	}

	idx.tombMu.Lock()
	if n.tombstoned.Swap(false) {
		idx.tombstones.Remove(uint64(n.id))
		idx.tombCount.Add(-1)
	}
	idx.tombMu.Unlock()
	n.ghost.Store(nil)
}

func (idx *Index) getOrCreateNode(id model.ID, tier model.TierID) *node {
	idx.mu.Lock()
	n, ok := idx.nodes[id]
	if !ok {
		n = newNode(id, tier, idx.cfg.MaxDegree)
		idx.nodes[id] = n
	}
	idx.mu.Unlock()

	if ok {
		n.setTier(tier)
		idx.revive(n)
	}
	return n
}

// insertNode links n into the graph using vec as its position.
func (idx *Index) insertNode(ctx context.Context, n *node, vec []float32) {
	// The first node becomes the entry point with no neighbors.
	if idx.entry.CompareAndSwap(nil, n) {
		return
	}

	// Candidate search runs to convergence; cancellation is handled by callers
	// between records.
	list, _, _ := idx.beamSearch(context.WithoutCancel(ctx), vec, idx.cfg.SearchListSize)
	cands := list.Items(make([]model.Neighbor, 0, list.Len()))
	listPool.Put(list)

	selected := idx.robustPrune(n.id, cands)

	targets := make([]*node, 0, len(selected)+1)
	targets = append(targets, n)
	for _, id := range selected {
		if t := idx.node(id); t != nil {
			targets = append(targets, t)
		}
	}

	unlock := lockInOrder(slices.Clone(targets))
	defer unlock()

	n.setNeighbors(selected)
	for _, t := range targets[1:] {
		idx.addReverseEdgeLocked(t, n.id, vec)
	}
}

// addReverseEdgeLocked adds id to t's neighbors, re-pruning t when it would
// exceed MaxDegree. Caller must hold t.mu.
func (idx *Index) addReverseEdgeLocked(t *node, id model.ID, vec []float32) {
	current := t.adjacency()
	if slices.Contains(current, id) {
		return
	}

	if len(current) < idx.cfg.MaxDegree {
		next := make([]model.ID, len(current), len(current)+1)
		copy(next, current)
		t.setNeighbors(append(next, id))
		return
	}

	tv, ok := idx.vectorOf(t)
	if !ok {
		return
	}

	cands := idx.neighborsWithDistances(tv, current, make([]model.Neighbor, 0, len(current)+1))
	cands = append(cands, model.Neighbor{ID: id, Distance: idx.dist(tv, vec)})
	t.setNeighbors(idx.robustPrune(t.id, cands))
}
