package vectier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/internal/cache"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/router"
	"github.com/hupe1980/vectier/tier"
	"github.com/hupe1980/vectier/vectorstore"
)

// DB is a tiered vector database.
//
// All methods are safe for concurrent use.
type DB struct {
	opts    options
	store   *vectorstore.Store
	tiers   *tier.Manager
	router  *router.Router
	indexes *indexSet
	rc      *resource.Controller
	closed  atomic.Bool
}

// New creates a DB for vectors of dimension dim.
func New(dim int, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	if !opts.metric.Valid() {
		return nil, fmt.Errorf("vectier: unsupported metric: %v", opts.metric)
	}

	logger := opts.logger.Logger
	rc := resource.NewController(opts.resourceConfig())

	if opts.blockCacheBytes > 0 && opts.backend.Store != nil {
		lru := cache.NewLRU(opts.blockCacheBytes, rc)
		opts.backend.Store = blobstore.NewCachingStore(opts.backend.Store, lru, DefaultBlockSize)
	}

	db := &DB{opts: opts, rc: rc}

	// The manager owns tier assignment, so the store asks it.
	store, err := vectorstore.New(dim,
		vectorstore.WithClassifier(func(rec model.Record) model.TierID {
			return db.tiers.Classify(rec)
		}),
		vectorstore.WithLogger(logger.With("component", "vectorstore")),
	)
	if err != nil {
		return nil, translateError(err)
	}

	mgr, err := tier.NewManager(store, opts.catalog,
		tier.WithClassifier(opts.classifier),
		tier.WithBatchSize(opts.batchSize),
		tier.WithCodec(opts.codec),
		tier.WithResourceController(rc),
		tier.WithLogger(logger.With("component", "tier")),
	)
	if err != nil {
		return nil, err
	}

	r := router.New(store, mgr, router.Config{
		MaxCandidatesPerTier: opts.maxCandidatesPerTier,
		MaxScanSize:          opts.maxScanSize,
		SearchListSize:       opts.indexConfig.SearchListSize,
		Logger:               logger.With("component", "router"),
	})

	db.store = store
	db.tiers = mgr
	db.router = r
	db.indexes = newIndexSet(store, r, opts.metric, opts.indexConfig, logger.With("component", "index"))
	store.Subscribe(db.indexes)

	return db, nil
}

// Dimension returns the vector dimension.
func (db *DB) Dimension() int { return db.store.Dimension() }

// Metric returns the default search metric.
func (db *DB) Metric() distance.Metric { return db.opts.metric }

// Insert stores a new record created at ts.
//
// Inserting an id that is already stored, hot or archived, fails with
// ErrAlreadyExists.
func (db *DB) Insert(ctx context.Context, id model.ID, vec []float32, ts time.Time) (err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordInsert(time.Since(start), err)
		db.opts.logger.LogInsert(ctx, id, len(vec), err)
	}()

	if db.closed.Load() {
		return ErrClosed
	}
	if dim := db.store.Dimension(); len(vec) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}

	if db.store.Contains(id) {
		return fmt.Errorf("%w: id %d", ErrAlreadyExists, id)
	}
	switch _, err := db.tiers.ArchivedRecord(ctx, id); {
	case err == nil:
		return fmt.Errorf("%w: id %d is archived", ErrAlreadyExists, id)
	case !errors.Is(err, tier.ErrNotFound):
		return translateError(err)
	}

	return translateError(db.store.Put(ctx, id, vec, ts))
}

// Update replaces the vector of a stored record and sets its update time
// to ts. Updating an archived record brings it back to the hot store.
func (db *DB) Update(ctx context.Context, id model.ID, vec []float32, ts time.Time) (err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordUpdate(time.Since(start), err)
		db.opts.logger.LogUpdate(ctx, id, err)
	}()

	if db.closed.Load() {
		return ErrClosed
	}
	if dim := db.store.Dimension(); len(vec) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}

	if db.store.Contains(id) {
		return translateError(db.store.Put(ctx, id, vec, ts))
	}

	prev, err := db.tiers.ArchivedRecord(ctx, id)
	if err != nil {
		return translateError(err)
	}

	if err := db.store.PutRecord(ctx, model.Record{
		ID:        id,
		Vector:    vec,
		CreatedAt: prev.CreatedAt,
		UpdatedAt: ts,
	}); err != nil {
		return translateError(err)
	}

	if _, err := db.tiers.Evict(ctx, id); err != nil {
		// Roll back so the archived copy stays authoritative.
		if _, rbErr := db.store.CompareAndDelete(context.WithoutCancel(ctx), model.Record{ID: id, Vector: vec, UpdatedAt: ts}); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return translateError(err)
	}
	return nil
}

// Delete removes a record. The graph node is tombstoned and removed by the
// next repair; archived copies are hidden from the catalog.
func (db *DB) Delete(ctx context.Context, id model.ID) (err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordDelete(time.Since(start), err)
		db.opts.logger.LogDelete(ctx, id, err)
	}()

	if db.closed.Load() {
		return ErrClosed
	}

	err = db.store.Delete(ctx, id)
	if !errors.Is(err, vectorstore.ErrNotFound) {
		return translateError(err)
	}

	ok, err := db.tiers.Evict(ctx, id)
	if err != nil {
		return translateError(err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// Get returns the record stored under id, hot or archived.
func (db *DB) Get(ctx context.Context, id model.ID) (model.Record, error) {
	if db.closed.Load() {
		return model.Record{}, ErrClosed
	}

	rec, err := db.store.Get(id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, vectorstore.ErrNotFound) {
		return model.Record{}, translateError(err)
	}

	rec, err = db.tiers.ArchivedRecord(ctx, id)
	return rec, translateError(err)
}

// Stats is a point-in-time summary of a DB.
type Stats struct {
	// RecordCount counts hot and archived records.
	RecordCount int
	// HotCount counts records in the vector store.
	HotCount int
	// ArchivedCount counts visible archived records.
	ArchivedCount int
	// TierCounts counts hot and archived records per tier.
	TierCounts map[model.TierID]int
	// IndexState is the worst state across the per-tier indexes.
	IndexState IndexState
	// Indexes holds the stats of each per-tier index.
	Indexes map[model.TierID]IndexStats
}

// Advisory returns ErrIndexDegraded if any index is degraded.
func (s Stats) Advisory() error {
	if s.IndexState == IndexDegraded {
		return ErrIndexDegraded
	}
	return nil
}

// Stats returns a summary of the DB.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	if db.closed.Load() {
		return Stats{}, ErrClosed
	}

	archived, err := db.tiers.ArchivedCounts(ctx)
	if err != nil {
		return Stats{}, translateError(err)
	}

	s := Stats{
		HotCount:   db.store.Len(),
		TierCounts: db.tiers.Counts(),
		IndexState: IndexEmpty,
		Indexes:    db.indexes.stats(),
	}
	for t, n := range archived {
		s.ArchivedCount += n
		s.TierCounts[t] += n
	}
	s.RecordCount = s.HotCount + s.ArchivedCount

	for _, is := range s.Indexes {
		if rank(is.State) > rank(s.IndexState) {
			s.IndexState = is.State
		}
	}
	return s, nil
}

func rank(s IndexState) int {
	switch s {
	case IndexDegraded:
		return 3
	case IndexBuilding:
		return 2
	case IndexReady:
		return 1
	default:
		return 0
	}
}

// Close releases the indexes and cached archive readers.
// Close is idempotent.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(db.indexes.close(), db.tiers.Close())
}
