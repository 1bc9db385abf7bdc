package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/index/diskann"
	"github.com/hupe1980/vectier/internal/searcher"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/tier"
	"github.com/hupe1980/vectier/vectorstore"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxCandidatesPerTier caps the candidates requested from one tier.
const DefaultMaxCandidatesPerTier = 1000

// ErrInvalidK is returned for a non-positive k.
var ErrInvalidK = errors.New("router: k must be positive")

// scanCheckInterval is the number of records scanned between ctx checks.
const scanCheckInterval = 1000

// Index is a graph index serving one hot tier.
type Index interface {
	Metric() distance.Metric
	Search(ctx context.Context, query []float32, k int, listSize int) (diskann.Result, error)
}

var _ Index = (*diskann.Index)(nil)

// Config configures a Router.
type Config struct {
	// MaxCandidatesPerTier caps k*tierCount per tier (default: 1000).
	MaxCandidatesPerTier int
	// MaxScanSize bounds the archived records scanned per tier and query.
	// Hitting it marks the result partial. Zero means unbounded.
	MaxScanSize int
	// SearchListSize is passed to index searches (0: index default).
	SearchListSize int
	// Logger receives debug output (default: discard).
	Logger *slog.Logger
}

// Result is the merged outcome of a query.
type Result struct {
	// Results are ordered by ascending distance, ties by ascending id.
	Results []model.SearchResult
	// Partial is set when a deadline expired or a scan bound was hit.
	Partial bool
	// Degraded is set when an index that served the query was degraded.
	Degraded bool
}

// Router fans queries out over the tiers of a tier.Manager.
type Router struct {
	store *vectorstore.Store
	tiers *tier.Manager
	cfg   Config

	mu      sync.RWMutex
	indexes map[model.TierID][]Index
}

// New creates a router over the hot store and the tiers of mgr.
func New(store *vectorstore.Store, mgr *tier.Manager, cfg Config) *Router {
	if cfg.MaxCandidatesPerTier <= 0 {
		cfg.MaxCandidatesPerTier = DefaultMaxCandidatesPerTier
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		store:   store,
		tiers:   mgr,
		cfg:     cfg,
		indexes: make(map[model.TierID][]Index),
	}
}

// AddIndex registers idx as serving the hot records of tier.
func (r *Router) AddIndex(t model.TierID, idx Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[t] = append(r.indexes[t], idx)
}

// RemoveIndex unregisters idx from tier.
func (r *Router) RemoveIndex(t model.TierID, idx Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[t] = slices.DeleteFunc(r.indexes[t], func(i Index) bool { return i == idx })
	if len(r.indexes[t]) == 0 {
		delete(r.indexes, t)
	}
}

func (r *Router) index(t model.TierID, metric distance.Metric) Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, idx := range r.indexes[t] {
		if idx.Metric() == metric {
			return idx
		}
	}
	return nil
}

type tierResult struct {
	results  []model.SearchResult
	partial  bool
	degraded bool
}

// Query returns the k nearest records to q under metric across all tiers.
func (r *Router) Query(ctx context.Context, q []float32, k int, metric distance.Metric) (Result, error) {
	if k <= 0 {
		return Result{}, ErrInvalidK
	}
	if dim := r.store.Dimension(); len(q) != dim {
		return Result{}, &distance.DimensionMismatchError{Expected: dim, Actual: len(q)}
	}
	if !metric.Valid() {
		return Result{}, fmt.Errorf("router: unsupported metric: %v", metric)
	}

	ids, err := r.tierIDs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Partial: true}, nil
		}
		return Result{}, err
	}
	if len(ids) == 0 {
		return Result{}, nil
	}

	view := r.tiers.View(ids...)
	defer view.Release()

	n := max(k, min(k*len(ids), r.cfg.MaxCandidatesPerTier))

	lists := make([]tierResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range ids {
		g.Go(func() error {
			res, err := r.queryTier(gctx, t, q, n, metric)
			if err != nil {
				return err
			}
			lists[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var out Result
	sorted := make([][]model.SearchResult, len(lists))
	for i, l := range lists {
		sorted[i] = l.results
		out.Partial = out.Partial || l.partial
		out.Degraded = out.Degraded || l.degraded
	}
	out.Results = Merge(sorted, k)

	r.cfg.Logger.DebugContext(ctx, "query routed",
		"tiers", len(ids), "k", k, "results", len(out.Results), "partial", out.Partial)
	return out, nil
}

func (r *Router) tierIDs(ctx context.Context) ([]model.TierID, error) {
	archived, err := r.tiers.ArchivedTiers(ctx)
	if err != nil {
		return nil, err
	}
	ids := archived
	for _, t := range r.tiers.Tiers() {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (r *Router) queryTier(ctx context.Context, t model.TierID, q []float32, n int, metric distance.Metric) (tierResult, error) {
	var res tierResult

	top := newTopK(n)
	if r.tiers.Counts()[t] > 0 {
		if idx := r.index(t, metric); idx != nil {
			sr, err := idx.Search(ctx, q, n, r.cfg.SearchListSize)
			if err != nil {
				return res, err
			}
			for _, nb := range sr.Neighbors {
				top.offer(model.SearchResult{ID: nb.ID, Distance: nb.Distance, Tier: t})
			}
			res.partial = sr.Partial
			res.degraded = sr.Degraded
		} else {
			res.partial = r.scanHot(ctx, t, q, metric, top)
		}
	}

	partial, err := r.scanArchive(ctx, t, q, metric, top)
	if err != nil {
		return res, err
	}
	res.partial = res.partial || partial
	res.results = top.sorted()
	return res, nil
}

func (r *Router) scanHot(ctx context.Context, t model.TierID, q []float32, metric distance.Metric, top *topK) bool {
	fn := distance.Func(metric)
	i := 0
	for rec := range r.store.Scan(func(rec model.Record) bool { return rec.Tier == t }) {
		if i%scanCheckInterval == 0 && ctx.Err() != nil {
			return true
		}
		i++
		top.offer(model.SearchResult{ID: rec.ID, Distance: fn(q, rec.Vector), Tier: t})
	}
	return false
}

// scanArchive scans the visible records of every batch of t, skipping ids
// that are also hot. It reports partial when ctx expires or MaxScanSize
// records were scanned.
func (r *Router) scanArchive(ctx context.Context, t model.TierID, q []float32, metric distance.Metric, top *topK) (bool, error) {
	entries, err := r.tiers.Batches(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, err
	}

	fn := distance.Func(metric)
	scanned := 0
	for _, e := range entries {
		if e.VisibleCount() == 0 {
			continue
		}
		reader, err := r.tiers.OpenBatch(ctx, e)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return false, err
		}

		for g := range reader.RowGroups() {
			if ctx.Err() != nil {
				return true, nil
			}
			if r.cfg.MaxScanSize > 0 && scanned >= r.cfg.MaxScanSize {
				return true, nil
			}

			recs, err := reader.ReadRowGroup(ctx, g)
			if err != nil {
				if ctx.Err() != nil {
					return true, nil
				}
				return false, err
			}
			for _, rec := range recs {
				if r.cfg.MaxScanSize > 0 && scanned >= r.cfg.MaxScanSize {
					return true, nil
				}
				scanned++
				// A hot copy supersedes the archived one.
				if !e.Contains(rec.ID) || r.store.Contains(rec.ID) {
					continue
				}
				top.offer(model.SearchResult{ID: rec.ID, Distance: fn(q, rec.Vector), Tier: t})
			}
		}
	}
	return false, nil
}

// topK keeps the n best results, worst on top.
type topK struct {
	n int
	h *searcher.Heap[model.SearchResult]
}

func newTopK(n int) *topK {
	return &topK{
		n: n,
		h: searcher.NewHeap(n+1, func(a, b model.SearchResult) bool { return b.Less(a) }),
	}
}

func (t *topK) offer(r model.SearchResult) {
	if t.h.Len() < t.n {
		t.h.Push(r)
		return
	}
	if worst, _ := t.h.Peek(); r.Less(worst) {
		t.h.ReplaceTop(r)
	}
}

func (t *topK) sorted() []model.SearchResult {
	out := make([]model.SearchResult, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = t.h.Pop()
	}
	return out
}
