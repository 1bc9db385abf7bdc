package vectier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/index/diskann"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/router"
	"github.com/hupe1980/vectier/vectorstore"
)

// indexSet keeps one graph index per hot tier. Indexes are created on the
// first record of a tier and registered with the router.
//
// mu is held for reading while an index is updated, so dropping or
// rebuilding an index never races with a store notification.
type indexSet struct {
	store  *vectorstore.Store
	router *router.Router
	metric distance.Metric
	cfg    diskann.Config
	logger *slog.Logger

	mu     sync.RWMutex
	byTier map[model.TierID]*diskann.Index
	closed bool
}

var _ vectorstore.Observer = (*indexSet)(nil)

func newIndexSet(store *vectorstore.Store, r *router.Router, metric distance.Metric, cfg diskann.Config, logger *slog.Logger) *indexSet {
	return &indexSet{
		store:  store,
		router: r,
		metric: metric,
		cfg:    cfg,
		logger: logger,
		byTier: make(map[model.TierID]*diskann.Index),
	}
}

func (s *indexSet) OnPut(ctx context.Context, rec model.Record, prev *model.Record) {
	if prev != nil && prev.Tier != rec.Tier {
		s.mu.RLock()
		if idx := s.byTier[prev.Tier]; idx != nil {
			diskann.Observer(idx).OnDelete(ctx, *prev)
		}
		s.mu.RUnlock()
	}

	s.mu.RLock()
	idx := s.byTier[rec.Tier]
	if idx == nil {
		s.mu.RUnlock()
		var err error
		if idx, err = s.create(rec.Tier); err != nil {
			s.logger.WarnContext(ctx, "index unavailable", "tier", rec.Tier, "error", err)
			return
		}
		s.mu.RLock()
		// Dropped again between create and RLock.
		if s.byTier[rec.Tier] != idx {
			s.mu.RUnlock()
			return
		}
	}
	defer s.mu.RUnlock()

	diskann.Observer(idx).OnPut(ctx, rec, prev)
}

func (s *indexSet) OnDelete(ctx context.Context, rec model.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.byTier[rec.Tier]; idx != nil {
		diskann.Observer(idx).OnDelete(ctx, rec)
	}
}

func (s *indexSet) create(t model.TierID) (*diskann.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(t)
}

func (s *indexSet) createLocked(t model.TierID) (*diskann.Index, error) {
	if s.closed {
		return nil, diskann.ErrClosed
	}
	if idx := s.byTier[t]; idx != nil {
		return idx, nil
	}

	cfg := s.cfg
	cfg.Logger = s.logger.With("tier", string(t))
	idx, err := diskann.New(s.store, s.metric, cfg)
	if err != nil {
		return nil, err
	}

	s.byTier[t] = idx
	s.router.AddIndex(t, idx)
	s.logger.Debug("index created", "tier", t, "metric", s.metric)
	return idx, nil
}

// drop closes the index of t unless the tier still has live nodes.
func (s *indexSet) drop(t model.TierID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.byTier[t]
	if idx == nil {
		return
	}
	if st := idx.Stats(); st.Nodes > st.Tombstones {
		return
	}

	delete(s.byTier, t)
	s.router.RemoveIndex(t, idx)
	_ = idx.Close()
	s.logger.Debug("index dropped", "tier", t)
}

// rebuild replaces the graph of t with one built from the tier's current
// records. Writes to the store block until the build finishes.
func (s *indexSet) rebuild(ctx context.Context, t model.TierID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []model.Record
	for rec := range s.store.Scan(func(r model.Record) bool { return r.Tier == t }) {
		recs = append(recs, rec)
	}
	if len(recs) < 2 {
		return fmt.Errorf("%w: tier %q has %d records", diskann.ErrBuild, t, len(recs))
	}

	idx, err := s.createLocked(t)
	if err != nil {
		return err
	}
	return idx.Build(ctx, recs, t)
}

func (s *indexSet) repair(ctx context.Context) (map[model.TierID]diskann.RepairReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make(map[model.TierID]diskann.RepairReport, len(s.byTier))
	var errs []error
	for _, t := range slices.Sorted(maps.Keys(s.byTier)) {
		report, err := s.byTier[t].Repair(ctx)
		if errors.Is(err, diskann.ErrClosed) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("tier %q: %w", t, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		reports[t] = report
	}
	return reports, errors.Join(errs...)
}

func (s *indexSet) stats() map[model.TierID]diskann.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.TierID]diskann.Stats, len(s.byTier))
	for t, idx := range s.byTier {
		out[t] = idx.Stats()
	}
	return out
}

func (s *indexSet) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for t, idx := range s.byTier {
		s.router.RemoveIndex(t, idx)
		errs = append(errs, idx.Close())
	}
	clear(s.byTier)
	return errors.Join(errs...)
}
