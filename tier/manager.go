package tier

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/vectier/archive"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/vectorstore"
	"golang.org/x/sync/semaphore"
)

// DefaultBatchSize is the number of records per archive batch.
const DefaultBatchSize = 1000

type options struct {
	classifier Classifier
	batchSize  int
	codec      archive.Codec
	rc         *resource.Controller
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*options)

// WithClassifier sets the initial classifier. The default is YearClassifier.
func WithClassifier(c Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithBatchSize sets the number of records written per archive batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithCodec sets the compression codec of new archive batches.
func WithCodec(c archive.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithResourceController throttles migration IO and background work.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

type tierLock struct {
	// migrate admits one migration of the tier at a time.
	migrate *semaphore.Weighted
	// view is held for writing while records move between hot and archive.
	view sync.RWMutex
}

// Manager tracks tier membership of the hot store and moves tiers between
// the hot store and archival backends.
type Manager struct {
	store   *vectorstore.Store
	catalog catalog.Catalog
	opts    options

	classifier atomic.Pointer[Classifier]

	mu      sync.RWMutex
	tiers   map[model.TierID]*Tier
	members map[model.TierID]*roaring64.Bitmap
	locks   map[model.TierID]*tierLock
	stores  map[string]blobstore.BlobStore

	readerMu sync.Mutex
	readers  map[string]*archive.Reader

	closed atomic.Bool
}

var _ vectorstore.Observer = (*Manager)(nil)

// NewManager creates a manager for store and subscribes it to store
// mutations. Records already in the store are picked up immediately.
func NewManager(store *vectorstore.Store, cat catalog.Catalog, optFns ...Option) (*Manager, error) {
	if store == nil || cat == nil {
		return nil, errors.New("tier: store and catalog are required")
	}

	opts := options{
		classifier: YearClassifier,
		batchSize:  DefaultBatchSize,
		codec:      archive.CodecLZ4,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		store:   store,
		catalog: cat,
		opts:    opts,
		tiers:   make(map[model.TierID]*Tier),
		members: make(map[model.TierID]*roaring64.Bitmap),
		locks:   make(map[model.TierID]*tierLock),
		stores:  make(map[string]blobstore.BlobStore),
		readers: make(map[string]*archive.Reader),
	}
	m.classifier.Store(&opts.classifier)

	store.Subscribe(m)
	for rec := range store.Scan(nil) {
		m.add(rec.Tier, rec.ID)
	}

	return m, nil
}

// Classify returns the tier the current classifier assigns to rec.
// It is suitable as the classifier of the vector store.
func (m *Manager) Classify(rec model.Record) model.TierID {
	return (*m.classifier.Load())(rec)
}

// Register adds or replaces a tier descriptor. A backend store is remembered
// under its location for reading archived batches.
func (m *Manager) Register(t Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := t
	m.tiers[t.ID] = &cp
	if t.Backend.Store != nil {
		m.stores[t.Backend.Location] = t.Backend.Store
	}
	m.lockLocked(t.ID)
}

// Tier returns the descriptor of id.
func (m *Manager) Tier(id model.TierID) (Tier, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tiers[id]
	if !ok {
		return Tier{}, false
	}
	return *t, true
}

// Tiers returns all known tiers ordered by id.
func (m *Manager) Tiers() []Tier {
	m.mu.RLock()
	out := make([]Tier, 0, len(m.tiers))
	for _, t := range m.tiers {
		out = append(out, *t)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Tier) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Counts returns the number of hot records per known tier.
func (m *Manager) Counts() map[model.TierID]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[model.TierID]int, len(m.tiers))
	for id := range m.tiers {
		out[id] = 0
	}
	for id, b := range m.members {
		out[id] = int(b.GetCardinality())
	}
	return out
}

// ArchivedCounts returns the number of visible archived records per tier.
func (m *Manager) ArchivedCounts(ctx context.Context) (map[model.TierID]int, error) {
	tiers, err := m.catalog.Tiers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[model.TierID]int, len(tiers))
	for _, t := range tiers {
		n, err := catalog.VisibleCount(ctx, m.catalog, t)
		if err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}

// ArchivedTiers returns the tiers that have catalog entries.
func (m *Manager) ArchivedTiers(ctx context.Context) ([]model.TierID, error) {
	return m.catalog.Tiers(ctx)
}

// HotIDs returns the hot ids of tier in ascending order.
func (m *Manager) HotIDs(tier model.TierID) []model.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.members[tier]
	if !ok {
		return nil
	}
	raw := b.ToArray()
	out := make([]model.ID, len(raw))
	for i, v := range raw {
		out[i] = model.ID(v)
	}
	return out
}

// Batches returns the catalog entries of tier.
func (m *Manager) Batches(ctx context.Context, tier model.TierID) ([]catalog.Entry, error) {
	return m.catalog.Entries(ctx, tier)
}

// OpenBatch returns a reader for the batch of e. Readers are cached and owned
// by the manager; callers must not close them.
func (m *Manager) OpenBatch(ctx context.Context, e catalog.Entry) (*archive.Reader, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	key := e.Backend + "\x00" + e.Batch

	m.readerMu.Lock()
	defer m.readerMu.Unlock()

	if r, ok := m.readers[key]; ok {
		return r, nil
	}

	m.mu.RLock()
	bs, ok := m.stores[e.Backend]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoBackend, e.Backend)
	}

	blob, err := bs.Open(ctx, e.Batch)
	if err != nil {
		return nil, fmt.Errorf("tier: open batch %s: %w", e.Batch, err)
	}
	r, err := archive.Open(ctx, blob)
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("tier: open batch %s: %w", e.Batch, err)
	}
	m.readers[key] = r
	return r, nil
}

// ArchivedRecord reads an archived record by id.
func (m *Manager) ArchivedRecord(ctx context.Context, id model.ID) (model.Record, error) {
	e, ok, err := m.locate(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if !ok {
		return model.Record{}, ErrNotFound
	}

	r, err := m.OpenBatch(ctx, e)
	if err != nil {
		return model.Record{}, err
	}
	rec, err := r.Get(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	rec.Tier = e.Tier
	return rec, nil
}

// Evict hides an archived record so it is no longer served. It reports
// whether id was archived.
func (m *Manager) Evict(ctx context.Context, id model.ID) (bool, error) {
	e, ok, err := m.locate(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	unlock := m.lockViews(e.Tier)
	defer unlock()

	if err := m.catalog.Hide(ctx, e.Tier, e.Batch, []model.ID{id}); err != nil {
		return false, err
	}
	m.opts.logger.DebugContext(ctx, "archived record evicted", "id", id, "tier", e.Tier, "batch", e.Batch)
	return true, nil
}

func (m *Manager) locate(ctx context.Context, id model.ID) (catalog.Entry, bool, error) {
	tiers, err := m.catalog.Tiers(ctx)
	if err != nil {
		return catalog.Entry{}, false, err
	}
	for _, t := range tiers {
		e, ok, err := catalog.Locate(ctx, m.catalog, t, id)
		if err != nil {
			return catalog.Entry{}, false, err
		}
		if ok {
			return e, true, nil
		}
	}
	return catalog.Entry{}, false, nil
}

// Close releases cached batch readers.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.readerMu.Lock()
	defer m.readerMu.Unlock()

	var errs []error
	for k, r := range m.readers {
		errs = append(errs, r.Close())
		delete(m.readers, k)
	}
	return errors.Join(errs...)
}

// OnPut implements vectorstore.Observer.
func (m *Manager) OnPut(_ context.Context, rec model.Record, prev *model.Record) {
	if prev != nil && prev.Tier != rec.Tier {
		m.remove(prev.Tier, prev.ID)
	}
	m.add(rec.Tier, rec.ID)
}

// OnDelete implements vectorstore.Observer.
func (m *Manager) OnDelete(_ context.Context, rec model.Record) {
	m.remove(rec.Tier, rec.ID)
}

func (m *Manager) add(tier model.TierID, id model.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tiers[tier]
	if !ok {
		t = &Tier{ID: tier, Backend: Backend{Kind: Local}, Mode: QueryableDirect}
		m.tiers[tier] = t
		m.lockLocked(tier)
	}
	t.Archived = false

	b, ok := m.members[tier]
	if !ok {
		b = roaring64.New()
		m.members[tier] = b
	}
	b.Add(uint64(id))
}

func (m *Manager) remove(tier model.TierID, id model.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.members[tier]; ok {
		b.Remove(uint64(id))
	}
}

func (m *Manager) lockLocked(tier model.TierID) *tierLock {
	l, ok := m.locks[tier]
	if !ok {
		l = &tierLock{migrate: semaphore.NewWeighted(1)}
		m.locks[tier] = l
	}
	return l
}

func (m *Manager) lock(tier model.TierID) *tierLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockLocked(tier)
}

// sortedLocks returns the locks of tiers deduplicated in ascending tier order,
// the order every caller acquires them in.
func (m *Manager) sortedLocks(tiers []model.TierID) []*tierLock {
	ids := slices.Clone(tiers)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	out := make([]*tierLock, len(ids))
	for i, id := range ids {
		out[i] = m.lock(id)
	}
	return out
}

func (m *Manager) lockViews(tiers ...model.TierID) (unlock func()) {
	locks := m.sortedLocks(tiers)
	for _, l := range locks {
		l.view.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].view.Unlock()
		}
	}
}

// View is a read handle over the visibility of one or more tiers. While it
// is held no record of those tiers moves between the hot store and the
// archive.
type View struct {
	locks []*tierLock
	once  sync.Once
}

// View read-locks the visibility of tiers. Release must be called when done.
func (m *Manager) View(tiers ...model.TierID) *View {
	v := &View{locks: m.sortedLocks(tiers)}
	for _, l := range v.locks {
		l.view.RLock()
	}
	return v
}

// Release unlocks the view. It is safe to call more than once.
func (v *View) Release() {
	v.once.Do(func() {
		for i := len(v.locks) - 1; i >= 0; i-- {
			v.locks[i].view.RUnlock()
		}
	})
}
