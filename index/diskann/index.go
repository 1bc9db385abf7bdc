package diskann

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
)

// VectorSource resolves an id to its current vector and tier.
// Returned vectors are treated as read-only.
type VectorSource interface {
	Lookup(id model.ID) ([]float32, model.TierID, bool)
	Dimension() int
}

// node is a graph vertex. Neighbors are referenced by id, never by pointer.
type node struct {
	id model.ID
	// mu serializes writers of this node's adjacency list.
	mu        sync.Mutex
	tier      atomic.Pointer[model.TierID]
	neighbors atomic.Pointer[[]model.ID]

	tombstoned atomic.Bool
	// ghost keeps the last vector of a tombstoned node for navigation until repair.
	ghost atomic.Pointer[[]float32]
}

func newNode(id model.ID, tier model.TierID, maxDegree int) *node {
	n := &node{id: id}
	n.setTier(tier)
	empty := make([]model.ID, 0, maxDegree)
	n.neighbors.Store(&empty)
	return n
}

func (n *node) Tier() model.TierID {
	return *n.tier.Load()
}

func (n *node) setTier(t model.TierID) {
	n.tier.Store(&t)
}

// adjacency returns the current neighbor list (lock-free read).
func (n *node) adjacency() []model.ID {
	return *n.neighbors.Load()
}

// setNeighbors publishes a private copy of ids. Caller must hold n.mu.
func (n *node) setNeighbors(ids []model.ID) {
	cp := make([]model.ID, len(ids))
	copy(cp, ids)
	n.neighbors.Store(&cp)
}

// Index is a mutable Vamana graph over ids of one VectorSource.
//
// Thread-safety:
//   - Search and ExactSearch are lock-free with respect to the graph
//   - Insert, Delete and Repair lock only the nodes they modify
//   - the node map lock is taken for node creation and removal only
type Index struct {
	source     VectorSource
	metric     distance.Metric
	dist       distance.FuncType
	cfg        Config
	pruneAlpha float32
	logger     *slog.Logger

	mu    sync.RWMutex
	nodes map[model.ID]*node

	entry atomic.Pointer[node]

	tombMu     sync.Mutex
	tombstones *roaring64.Bitmap
	tombCount  atomic.Int64

	// overlay resolves vectors of records passed to Build.
	overlay atomic.Pointer[map[model.ID][]float32]

	state atomic.Int32

	buildMu   sync.Mutex
	repairMu  sync.Mutex
	repairing atomic.Bool

	closeMu  sync.RWMutex
	closed   bool
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New creates an empty index over source.
func New(source VectorSource, metric distance.Metric, cfg Config) (*Index, error) {
	if source == nil {
		return nil, fmt.Errorf("diskann: nil vector source")
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("diskann: unsupported metric: %v", metric)
	}

	cfg = cfg.withDefaults()

	alpha := cfg.Alpha
	if metric == distance.MetricDot {
		// Negative distances invert the alpha scaling.
		alpha = 1
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	idx := &Index{
		source:     source,
		metric:     metric,
		dist:       distance.Func(metric),
		cfg:        cfg,
		pruneAlpha: alpha,
		logger:     cfg.Logger,
		nodes:      make(map[model.ID]*node),
		tombstones: roaring64.New(),
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
	}
	idx.state.Store(int32(StateEmpty))

	return idx, nil
}

// Metric returns the distance metric of the index.
func (idx *Index) Metric() distance.Metric {
	return idx.metric
}

// Dimension returns the vector dimension of the underlying source.
func (idx *Index) Dimension() int {
	return idx.source.Dimension()
}

// State returns the current lifecycle state.
func (idx *Index) State() State {
	return State(idx.state.Load())
}

// Len returns the number of live (non-tombstoned) nodes.
func (idx *Index) Len() int {
	idx.mu.RLock()
	n := len(idx.nodes)
	idx.mu.RUnlock()
	return n - int(idx.tombCount.Load())
}

// Contains reports whether id is a live node.
func (idx *Index) Contains(id model.ID) bool {
	n := idx.node(id)
	return n != nil && !n.tombstoned.Load()
}

// Stats is a point-in-time summary of an Index.
type Stats struct {
	State      State
	Nodes      int
	Tombstones int
	EntryPoint model.ID
	HasEntry   bool
	MaxDegree  int
}

// TombstoneRatio returns Tombstones / Nodes.
func (s Stats) TombstoneRatio() float64 {
	if s.Nodes == 0 {
		return 0
	}
	return float64(s.Tombstones) / float64(s.Nodes)
}

// Stats returns index statistics.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	nodes := len(idx.nodes)
	idx.mu.RUnlock()

	s := Stats{
		State:      idx.State(),
		Nodes:      nodes,
		Tombstones: int(idx.tombCount.Load()),
		MaxDegree:  idx.cfg.MaxDegree,
	}
	if ep := idx.entry.Load(); ep != nil {
		s.EntryPoint = ep.id
		s.HasEntry = true
	}
	return s
}

// Close stops background repair and rejects further operations.
func (idx *Index) Close() error {
	idx.closeMu.Lock()
	if idx.closed {
		idx.closeMu.Unlock()
		return nil
	}
	idx.closed = true
	idx.state.Store(int32(StateClosed))
	idx.closeMu.Unlock()

	idx.bgCancel()
	idx.bgWG.Wait()

	idx.logger.Debug("diskann index closed")
	return nil
}

func (idx *Index) isClosed() bool {
	return idx.State() == StateClosed
}

func (idx *Index) casState(from, to State) bool {
	return idx.state.CompareAndSwap(int32(from), int32(to))
}

func (idx *Index) node(id model.ID) *node {
	idx.mu.RLock()
	n := idx.nodes[id]
	idx.mu.RUnlock()
	return n
}

// vectorOf resolves a vector for navigation, including tombstoned nodes.
func (idx *Index) vectorOf(n *node) ([]float32, bool) {
	if g := n.ghost.Load(); g != nil {
		return *g, true
	}
	if v, _, ok := idx.source.Lookup(n.id); ok {
		return v, true
	}
	if ov := idx.overlay.Load(); ov != nil {
		if v, ok := (*ov)[n.id]; ok {
			return v, true
		}
	}
	return nil, false
}

// isLive reports whether n may be returned as a result: not tombstoned and
// present in the source under the tier recorded at insertion.
func (idx *Index) isLive(n *node) bool {
	if n.tombstoned.Load() {
		return false
	}
	if _, t, ok := idx.source.Lookup(n.id); ok {
		return t == n.Tier()
	}
	if ov := idx.overlay.Load(); ov != nil {
		_, ok := (*ov)[n.id]
		return ok
	}
	return false
}

func (idx *Index) snapshotNodes() []*node {
	idx.mu.RLock()
	out := make([]*node, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		out = append(out, n)
	}
	idx.mu.RUnlock()
	return out
}

func compareNodes(a, b *node) int {
	return cmp.Compare(a.id, b.id)
}

// lockInOrder locks the given nodes in increasing id order and returns the
// unlock function. Duplicates and nils are ignored.
func lockInOrder(ns []*node) func() {
	ns = slices.DeleteFunc(ns, func(n *node) bool { return n == nil })
	slices.SortFunc(ns, compareNodes)
	ns = slices.CompactFunc(ns, func(a, b *node) bool { return a.id == b.id })

	for _, n := range ns {
		n.mu.Lock()
	}
	return func() {
		for i := len(ns) - 1; i >= 0; i-- {
			ns[i].mu.Unlock()
		}
	}
}

// checkDegraded moves a Ready index to Degraded when the tombstone ratio is exceeded.
func (idx *Index) checkDegraded() {
	if idx.Stats().TombstoneRatio() <= idx.cfg.DegradedRatio {
		return
	}
	if idx.casState(StateReady, StateDegraded) {
		idx.logger.Warn("diskann index degraded",
			"tombstones", idx.tombCount.Load(),
			"threshold", idx.cfg.DegradedRatio)
	}
	if idx.State() == StateDegraded {
		idx.maybeStartRepair()
	}
}

func (idx *Index) maybeStartRepair() {
	if !idx.cfg.AutoRepair {
		return
	}

	idx.closeMu.RLock()
	defer idx.closeMu.RUnlock()
	if idx.closed {
		return
	}
	if !idx.repairing.CompareAndSwap(false, true) {
		return
	}

	idx.bgWG.Add(1)
	go func() {
		defer idx.bgWG.Done()

		// Tombstones added while a pass runs are picked up by the next pass.
		for idx.tombCount.Load() > 0 {
			report, err := idx.Repair(idx.bgCtx)
			if err != nil {
				idx.logger.Warn("background repair stopped", "error", err, "removed", report.Removed)
				idx.repairing.Store(false)
				return
			}
			idx.logger.Info("background repair finished", "removed", report.Removed, "rewired", report.Rewired)
		}
		idx.finishRepair()
		idx.repairing.Store(false)

		if idx.State() == StateDegraded {
			idx.maybeStartRepair()
		}
	}()
}
