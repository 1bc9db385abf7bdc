package tier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	march2020 = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	sept2020  = time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)
	march2024 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func newTestManager(t *testing.T, cat catalog.Catalog, opts ...Option) (*vectorstore.Store, *Manager) {
	t.Helper()

	var mgr *Manager
	store, err := vectorstore.New(2, vectorstore.WithClassifier(func(r model.Record) model.TierID {
		return mgr.Classify(r)
	}))
	require.NoError(t, err)

	mgr, err = NewManager(store, cat, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return store, mgr
}

// seed stores ids 5 and 6 in tier 2020 and ids 7 and 8 in tier 2024.
func seed(t *testing.T, store *vectorstore.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 5, []float32{1, 0}, march2020))
	require.NoError(t, store.Put(ctx, 6, []float32{0, 1}, sept2020))
	require.NoError(t, store.Put(ctx, 7, []float32{-1, 0}, march2024))
	require.NoError(t, store.Put(ctx, 8, []float32{0, -1}, march2024))
}

func memoryBackend(bs blobstore.BlobStore) Backend {
	return Backend{Kind: External, Location: "memory://archive", Store: bs}
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	assert.Equal(t, map[model.TierID]int{"2020": 2, "2024": 2}, mgr.Counts())
	assert.Equal(t, []model.ID{5, 6}, mgr.HotIDs("2020"))

	tiers := mgr.Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, model.TierID("2020"), tiers[0].ID)
	assert.Equal(t, QueryableDirect, tiers[0].Mode)
	assert.Equal(t, Local, tiers[0].Backend.Kind)

	require.NoError(t, store.SetTier(ctx, 6, "2024"))
	require.NoError(t, store.Delete(ctx, 7))
	assert.Equal(t, map[model.TierID]int{"2020": 1, "2024": 2}, mgr.Counts())
	assert.Equal(t, []model.ID{6, 8}, mgr.HotIDs("2024"))
}

func TestNewManagerPicksUpExistingRecords(t *testing.T) {
	store, err := vectorstore.New(2, vectorstore.WithClassifier(YearClassifier))
	require.NoError(t, err)
	seed(t, store)

	mgr, err := NewManager(store, catalog.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, map[model.TierID]int{"2020": 2, "2024": 2}, mgr.Counts())
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	store, mgr := newTestManager(t, cat)
	seed(t, store)
	bs := blobstore.NewMemoryStore()

	report, err := mgr.Migrate(ctx, "2020", memoryBackend(bs))
	require.NoError(t, err)
	assert.Equal(t, 2, report.MovedCount)
	assert.Empty(t, report.FailedIDs)
	assert.Equal(t, 1, report.Batches)
	assert.NotEmpty(t, report.RunID)
	assert.Positive(t, report.Bytes)

	_, err = store.Get(5)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
	_, err = store.Get(6)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)

	rec, err := mgr.ArchivedRecord(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
	assert.Equal(t, model.TierID("2020"), rec.Tier)
	assert.True(t, rec.CreatedAt.Equal(march2020))

	tr, ok := mgr.Tier("2020")
	require.True(t, ok)
	assert.True(t, tr.Archived)
	assert.Equal(t, ScanOnly, tr.Mode)
	assert.Equal(t, External, tr.Backend.Kind)

	assert.Equal(t, 0, mgr.Counts()["2020"])
	archived, err := mgr.ArchivedCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.TierID]int{"2020": 2}, archived)

	names, err := bs.List(ctx, "2020/")
	require.NoError(t, err)
	assert.Len(t, names, 1)

	// The other tier is untouched.
	_, err = store.Get(7)
	assert.NoError(t, err)
}

func TestMigrateBatches(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	store, mgr := newTestManager(t, cat, WithBatchSize(2))

	for id := model.ID(1); id <= 5; id++ {
		require.NoError(t, store.Put(ctx, id, []float32{float32(id), 1}, march2020))
	}

	report, err := mgr.Migrate(ctx, "2020", memoryBackend(blobstore.NewMemoryStore()))
	require.NoError(t, err)
	assert.Equal(t, 5, report.MovedCount)
	assert.Equal(t, 3, report.Batches)

	entries, err := cat.Entries(ctx, "2020")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.ID(1), entries[0].FirstID)
	assert.Equal(t, model.ID(2), entries[0].LastID)
	assert.Equal(t, model.ID(5), entries[2].FirstID)
	assert.Equal(t, report.RunID, entries[0].RunID)

	for id := model.ID(1); id <= 5; id++ {
		rec, err := mgr.ArchivedRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, float32(id), rec.Vector[0])
	}
}

func TestMigrateErrors(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	_, err := mgr.Migrate(ctx, "2020", Backend{Location: "nowhere"})
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = mgr.Migrate(ctx, "1999", memoryBackend(blobstore.NewMemoryStore()))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

// corruptStore flips a byte of every blob it returns.
type corruptStore struct {
	*blobstore.MemoryStore
}

func (s corruptStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, err
	}
	data[len(data)/3] ^= 0xff
	tmp := blobstore.NewMemoryStore()
	if err := tmp.Put(ctx, name, data); err != nil {
		return nil, err
	}
	return tmp.Open(ctx, name)
}

func TestMigrateVerificationFailure(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	store, mgr := newTestManager(t, cat)
	seed(t, store)

	report, err := mgr.Migrate(ctx, "2020", memoryBackend(corruptStore{blobstore.NewMemoryStore()}))
	require.ErrorIs(t, err, ErrMigrationPartialFailure)
	assert.Equal(t, 0, report.MovedCount)
	assert.Equal(t, []model.ID{5, 6}, report.FailedIDs)

	// Nothing is lost and nothing is published.
	_, err = store.Get(5)
	assert.NoError(t, err)
	_, err = store.Get(6)
	assert.NoError(t, err)

	entries, err := cat.Entries(ctx, "2020")
	require.NoError(t, err)
	assert.Empty(t, entries)

	tr, _ := mgr.Tier("2020")
	assert.False(t, tr.Archived)
}

// hookStore runs onOpen before every Open.
type hookStore struct {
	*blobstore.MemoryStore
	once   sync.Once
	onOpen func()
}

func (s *hookStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	s.once.Do(s.onOpen)
	return s.MemoryStore.Open(ctx, name)
}

func TestMigrateConcurrentUpdateStaysHot(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	bs := &hookStore{MemoryStore: blobstore.NewMemoryStore()}
	bs.onOpen = func() {
		// Runs after the batch was written, before it is committed.
		require.NoError(t, store.Put(ctx, 5, []float32{0.5, 0.5}, march2020.Add(time.Hour)))
	}

	report, err := mgr.Migrate(ctx, "2020", memoryBackend(bs))
	require.ErrorIs(t, err, ErrMigrationPartialFailure)
	assert.Equal(t, 1, report.MovedCount)
	assert.Equal(t, []model.ID{5}, report.FailedIDs)

	rec, err := store.Get(5)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, rec.Vector)

	_, err = mgr.ArchivedRecord(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = mgr.ArchivedRecord(ctx, 6)
	assert.NoError(t, err)
}

func TestMigrateConcurrentRetierStaysHot(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	bs := &hookStore{MemoryStore: blobstore.NewMemoryStore()}
	bs.onOpen = func() {
		require.NoError(t, store.SetTier(ctx, 5, "2024"))
	}

	report, err := mgr.Migrate(ctx, "2020", memoryBackend(bs))
	require.ErrorIs(t, err, ErrMigrationPartialFailure)
	assert.Equal(t, 1, report.MovedCount)
	assert.Equal(t, []model.ID{5}, report.FailedIDs)

	rec, err := store.Get(5)
	require.NoError(t, err)
	assert.Equal(t, model.TierID("2024"), rec.Tier)
	assert.Equal(t, []float32{1, 0}, rec.Vector)

	_, err = mgr.ArchivedRecord(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	counts := mgr.Counts()
	assert.Equal(t, 0, counts["2020"])
	assert.Equal(t, 3, counts["2024"])
}

// cancelCatalog cancels a context after the first successful Put.
type cancelCatalog struct {
	catalog.Catalog
	cancel context.CancelFunc
}

func (c cancelCatalog) Put(ctx context.Context, e catalog.Entry) error {
	err := c.Catalog.Put(ctx, e)
	c.cancel()
	return err
}

func TestMigrateCancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := cancelCatalog{Catalog: catalog.NewMemory(), cancel: cancel}
	store, mgr := newTestManager(t, cat, WithBatchSize(1))
	seed(t, store)

	report, err := mgr.Migrate(ctx, "2020", memoryBackend(blobstore.NewMemoryStore()))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.MovedCount)
	assert.Equal(t, 1, report.Batches)

	_, err = store.Get(5)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
	_, err = store.Get(6)
	assert.NoError(t, err)

	tr, _ := mgr.Tier("2020")
	assert.False(t, tr.Archived)
}

func TestViewBlocksCommit(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	view := mgr.View("2020", "2024", "2020")

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Migrate(ctx, "2020", memoryBackend(blobstore.NewMemoryStore()))
		done <- err
	}()

	assert.Never(t, func() bool { return !store.Contains(5) }, 100*time.Millisecond, 10*time.Millisecond)
	view.Release()
	view.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("migration did not finish")
	}
	assert.False(t, store.Contains(5))
}

func TestEvict(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	_, err := mgr.Migrate(ctx, "2020", memoryBackend(blobstore.NewMemoryStore()))
	require.NoError(t, err)

	ok, err := mgr.Evict(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.Evict(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mgr.ArchivedRecord(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReclassifyBoundary(t *testing.T) {
	ctx := context.Background()
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	_, err := mgr.Migrate(ctx, "2020", memoryBackend(blobstore.NewMemoryStore()))
	require.NoError(t, err)

	// Everything from June 2020 on is hot: id 6 is promoted from the
	// archive, ids 7 and 8 move from 2024 to hot.
	classifier := BoundaryClassifier(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), "hot")
	report, err := mgr.ReclassifyBoundary(ctx, classifier)
	require.NoError(t, err)
	assert.Equal(t, 3, report.MovedCount)

	rec, err := store.Get(6)
	require.NoError(t, err)
	assert.Equal(t, model.TierID("hot"), rec.Tier)
	assert.True(t, rec.CreatedAt.Equal(sept2020))

	_, err = mgr.ArchivedRecord(ctx, 6)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = mgr.ArchivedRecord(ctx, 5)
	assert.NoError(t, err)

	assert.Equal(t, []model.ID{6, 7, 8}, mgr.HotIDs("hot"))

	// New puts follow the installed classifier.
	require.NoError(t, store.Put(ctx, 9, []float32{1, 1}, march2024))
	rec, err = store.Get(9)
	require.NoError(t, err)
	assert.Equal(t, model.TierID("hot"), rec.Tier)

	again, err := mgr.ReclassifyBoundary(ctx, classifier)
	require.NoError(t, err)
	assert.Equal(t, 0, again.MovedCount)
}

func TestReclassifyBoundaryNoop(t *testing.T) {
	store, mgr := newTestManager(t, catalog.NewMemory())
	seed(t, store)

	report, err := mgr.ReclassifyBoundary(context.Background(), YearClassifier)
	require.NoError(t, err)
	assert.Equal(t, 0, report.MovedCount)
}

func TestClosed(t *testing.T) {
	_, mgr := newTestManager(t, catalog.NewMemory())
	require.NoError(t, mgr.Close())
	require.NoError(t, mgr.Close())

	_, err := mgr.Migrate(context.Background(), "2020", memoryBackend(blobstore.NewMemoryStore()))
	assert.ErrorIs(t, err, ErrClosed)
}
