package diskann

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/internal/searcher"
	"github.com/hupe1980/vectier/model"
)

// Result is the outcome of a search.
type Result struct {
	// Neighbors are ordered by ascending distance, ties by ascending id.
	Neighbors []model.Neighbor
	// Partial is set when the context expired before the search converged.
	Partial bool
	// Degraded is set when the index was Degraded at query time.
	Degraded bool
	// Visited is the number of nodes visited.
	Visited int
}

var listPool = sync.Pool{
	New: func() any { return searcher.NewCandidateList(DefaultSearchListSize) },
}

// Search returns the approximate k nearest live neighbors of query.
//
// listSize is the beam width L (0 uses Config.SearchListSize; it is raised to k
// when smaller). When ctx expires the best results found so far are returned
// with Partial set; an expired context is not an error.
func (idx *Index) Search(ctx context.Context, query []float32, k int, listSize int) (Result, error) {
	if err := idx.checkQuery(query, k); err != nil {
		return Result{}, err
	}

	if listSize <= 0 {
		listSize = idx.cfg.SearchListSize
	}
	listSize = max(listSize, k)

	list, visited, partial := idx.beamSearch(ctx, query, listSize)
	defer listPool.Put(list)

	res := Result{
		Neighbors: make([]model.Neighbor, 0, k),
		Partial:   partial,
		Degraded:  idx.State() == StateDegraded,
		Visited:   visited,
	}

	for _, c := range list.Items(nil) {
		n := idx.node(c.ID)
		if n == nil || !idx.isLive(n) {
			continue
		}
		res.Neighbors = append(res.Neighbors, c)
		if len(res.Neighbors) == k {
			break
		}
	}

	// A graph cut off by tombstones can leave live nodes unreachable.
	if !partial && len(res.Neighbors) < min(k, idx.Len()) {
		exact, err := idx.ExactSearch(ctx, query, k)
		if err != nil {
			return Result{}, err
		}
		idx.logger.Debug("beam search fell short, using exact scan",
			"found", len(res.Neighbors), "k", k, "live", idx.Len())
		exact.Visited += visited
		exact.Degraded = res.Degraded
		return exact, nil
	}

	return res, nil
}

// ExactSearch returns the exact k nearest live neighbors by a linear scan.
// Deadline semantics match Search.
func (idx *Index) ExactSearch(ctx context.Context, query []float32, k int) (Result, error) {
	if err := idx.checkQuery(query, k); err != nil {
		return Result{}, err
	}

	res := Result{Degraded: idx.State() == StateDegraded}

	// Worst candidate on top.
	h := searcher.NewHeap(k+1, func(a, b model.Neighbor) bool { return b.Less(a) })

	for i, n := range idx.snapshotNodes() {
		if i%buildCheckInterval == 0 && ctx.Err() != nil {
			res.Partial = true
			break
		}
		if !idx.isLive(n) {
			continue
		}
		v, ok := idx.vectorOf(n)
		if !ok {
			continue
		}
		res.Visited++

		c := model.Neighbor{ID: n.id, Distance: idx.dist(query, v)}
		if h.Len() < k {
			h.Push(c)
			continue
		}
		if worst, _ := h.Peek(); c.Less(worst) {
			h.ReplaceTop(c)
		}
	}

	res.Neighbors = make([]model.Neighbor, h.Len())
	for i := len(res.Neighbors) - 1; i >= 0; i-- {
		res.Neighbors[i] = h.Pop()
	}
	return res, nil
}

func (idx *Index) checkQuery(query []float32, k int) error {
	if idx.isClosed() {
		return ErrClosed
	}
	if k <= 0 {
		return ErrInvalidK
	}
	if dim := idx.source.Dimension(); len(query) != dim {
		return &distance.DimensionMismatchError{Expected: dim, Actual: len(query)}
	}
	return nil
}

// beamSearch runs a greedy best-first search from the entry point.
//
// The returned list holds up to listSize live nodes plus the tombstoned and
// stale nodes that ranked among them; those stay navigable but do not count
// against listSize. The list must be returned to listPool by the caller.
// The search stops when every entry in the list has been expanded, the visited
// bound is hit, or ctx is done (partial).
func (idx *Index) beamSearch(ctx context.Context, query []float32, listSize int) (*searcher.CandidateList, int, bool) {
	list := listPool.Get().(*searcher.CandidateList)
	list.Reset(listSize)

	ep, epVec := idx.entryNode()
	if ep == nil {
		return list, 0, false
	}

	visited := searcher.GetVisited()
	defer searcher.PutVisited(visited)

	visited.Visit(ep.id)
	idx.offer(list, ep, model.Neighbor{ID: ep.id, Distance: idx.dist(query, epVec)})

	partial := false
	for expansions := 0; ; expansions++ {
		if expansions%ctxCheckInterval == 0 && ctx.Err() != nil {
			partial = true
			break
		}
		if visited.Len() >= idx.cfg.MaxVisited {
			break
		}

		cur, ok := list.NextUnexpanded()
		if !ok {
			break
		}
		n := idx.node(cur.ID)
		if n == nil {
			continue
		}

		for _, nb := range n.adjacency() {
			if !visited.Visit(nb) {
				continue
			}
			nn := idx.node(nb)
			if nn == nil {
				continue
			}
			v, ok := idx.vectorOf(nn)
			if !ok {
				continue
			}
			idx.offer(list, nn, model.Neighbor{ID: nb, Distance: idx.dist(query, v)})
		}
	}

	return list, visited.Len(), partial
}

// offer inserts c into list. A node that is not live widens the list by one
// so it never displaces a live candidate.
func (idx *Index) offer(list *searcher.CandidateList, n *node, c model.Neighbor) {
	if idx.isLive(n) {
		list.Insert(c)
		return
	}
	if list.Accepts(c) {
		list.Grow(1)
		list.Insert(c)
	}
}

// entryNode returns the entry point and its vector. If the entry point can no
// longer be resolved, the lowest-id resolvable node is used.
func (idx *Index) entryNode() (*node, []float32) {
	if ep := idx.entry.Load(); ep != nil {
		if v, ok := idx.vectorOf(ep); ok {
			return ep, v
		}
	}

	nodes := idx.snapshotNodes()
	slices.SortFunc(nodes, compareNodes)
	for _, n := range nodes {
		if v, ok := idx.vectorOf(n); ok {
			return n, v
		}
	}
	return nil, nil
}
