package diskann

import (
	"context"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/vectier/model"
)

// RepairReport summarizes one Repair pass.
type RepairReport struct {
	// Removed is the number of tombstoned nodes dropped from the graph.
	Removed int
	// Rewired is the number of live nodes whose adjacency list was rebuilt.
	Rewired int
	// Connected is the number of edges added between neighbors of removed nodes.
	Connected int
	Duration  time.Duration
}

// Repair compacts tombstones.
//
// For every live node pointing at a tombstoned node the adjacency list is
// rebuilt from its live neighbors plus the tombstoned neighbors' live
// neighbors and pruned to MaxDegree. The live neighbors of each removed node
// are then connected pairwise while under MaxDegree, the entry point is moved
// off removed nodes and the nodes are dropped. A Degraded index returns to
// Ready. On cancellation the graph is left consistent and ctx.Err() returned.
func (idx *Index) Repair(ctx context.Context) (RepairReport, error) {
	if idx.isClosed() {
		return RepairReport{}, ErrClosed
	}

	idx.repairMu.Lock()
	defer idx.repairMu.Unlock()

	start := time.Now()
	report := RepairReport{}

	idx.tombMu.Lock()
	dead := idx.tombstones.Clone()
	idx.tombMu.Unlock()

	if dead.IsEmpty() {
		idx.finishRepair()
		report.Duration = time.Since(start)
		return report, nil
	}

	nodes := idx.snapshotNodes()
	slices.SortFunc(nodes, compareNodes)

	for i, n := range nodes {
		if i%buildCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				report.Duration = time.Since(start)
				return report, err
			}
		}
		if n.tombstoned.Load() || !containsAny(n.adjacency(), dead) {
			continue
		}
		if idx.rewire(n, dead) {
			report.Rewired++
		}
	}

	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	it := dead.Iterator()
	for it.HasNext() {
		if t := idx.node(model.ID(it.Next())); t != nil {
			report.Connected += idx.connectNeighbors(t, dead)
		}
	}

	idx.moveEntryPoint(dead)
	report.Removed = idx.removeNodes(dead)

	idx.finishRepair()
	report.Duration = time.Since(start)

	idx.logger.Info("diskann repair finished",
		"removed", report.Removed,
		"rewired", report.Rewired,
		"connected", report.Connected,
		"duration", report.Duration)

	return report, nil
}

// rewire rebuilds n's adjacency without nodes in dead.
func (idx *Index) rewire(n *node, dead *roaring64.Bitmap) bool {
	vec, ok := idx.vectorOf(n)
	if !ok {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	current := n.adjacency()
	ids := make([]model.ID, 0, len(current)*2)
	for _, nb := range current {
		if !dead.Contains(uint64(nb)) {
			ids = append(ids, nb)
			continue
		}
		t := idx.node(nb)
		if t == nil {
			continue
		}
		for _, x := range t.adjacency() {
			if x != n.id && !dead.Contains(uint64(x)) {
				ids = append(ids, x)
			}
		}
	}

	cands := idx.neighborsWithDistances(vec, ids, make([]model.Neighbor, 0, len(ids)))
	n.setNeighbors(idx.robustPrune(n.id, cands))
	return true
}

// connectNeighbors connects the live neighbors of the removed node t pairwise,
// bounded by MaxDegree. It returns the number of edges added.
func (idx *Index) connectNeighbors(t *node, dead *roaring64.Bitmap) int {
	var live []*node
	for _, id := range t.adjacency() {
		if dead.Contains(uint64(id)) {
			continue
		}
		if n := idx.node(id); n != nil && !n.tombstoned.Load() {
			live = append(live, n)
		}
	}
	slices.SortFunc(live, compareNodes)

	added := 0
	for _, a := range live {
		a.mu.Lock()
		adj := a.adjacency()
		next := slices.Clone(adj)
		for _, b := range live {
			if len(next) >= idx.cfg.MaxDegree {
				break
			}
			if b.id == a.id || slices.Contains(next, b.id) {
				continue
			}
			next = append(next, b.id)
			added++
		}
		if len(next) != len(adj) {
			a.setNeighbors(next)
		}
		a.mu.Unlock()
	}
	return added
}

// moveEntryPoint replaces an entry point that is about to be removed.
func (idx *Index) moveEntryPoint(dead *roaring64.Bitmap) {
	ep := idx.entry.Load()
	if ep == nil || !dead.Contains(uint64(ep.id)) {
		return
	}

	for _, id := range ep.adjacency() {
		if n := idx.node(id); n != nil && !n.tombstoned.Load() {
			idx.entry.Store(n)
			return
		}
	}

	nodes := idx.snapshotNodes()
	slices.SortFunc(nodes, compareNodes)
	for _, n := range nodes {
		if !n.tombstoned.Load() {
			idx.entry.Store(n)
			return
		}
	}
	idx.entry.Store(nil)
}

// removeNodes drops nodes in dead that are still tombstoned.
func (idx *Index) removeNodes(dead *roaring64.Bitmap) int {
	removed := make([]model.ID, 0, dead.GetCardinality())

	idx.mu.Lock()
	it := dead.Iterator()
	for it.HasNext() {
		id := model.ID(it.Next())
		if n, ok := idx.nodes[id]; ok && n.tombstoned.Load() {
			delete(idx.nodes, id)
			removed = append(removed, id)
		}
	}
	idx.mu.Unlock()

	idx.tombMu.Lock()
	for _, id := range removed {
		if idx.tombstones.CheckedRemove(uint64(id)) {
			idx.tombCount.Add(-1)
		}
	}
	idx.tombMu.Unlock()

	return len(removed)
}

func (idx *Index) finishRepair() {
	if idx.Stats().TombstoneRatio() > idx.cfg.DegradedRatio {
		return
	}
	if idx.casState(StateDegraded, StateReady) {
		idx.logger.Info("diskann index ready after repair")
	}
}

func containsAny(ids []model.ID, set *roaring64.Bitmap) bool {
	for _, id := range ids {
		if set.Contains(uint64(id)) {
			return true
		}
	}
	return false
}
