package tier

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
	"github.com/hupe1980/vectier/archive"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/vectorstore"
)

// Migrate moves every hot record of tier to backend.
//
// Records are written in batches. Each batch is read back and compared bit
// for bit before it is published in the catalog, and only published records
// are removed from the hot store. Records that fail verification or change
// while being migrated stay hot and are listed in the report; the call then
// returns ErrMigrationPartialFailure. If ctx is cancelled between batches the
// report reflects the finished batches and ctx.Err() is returned.
func (m *Manager) Migrate(ctx context.Context, tier model.TierID, backend Backend) (MigrationReport, error) {
	report := MigrationReport{Tier: tier}

	if m.closed.Load() {
		return report, ErrClosed
	}
	if backend.Store == nil {
		return report, ErrNoBackend
	}
	if _, ok := m.Tier(tier); !ok {
		return report, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	l := m.lock(tier)
	if err := l.migrate.Acquire(ctx, 1); err != nil {
		return report, err
	}
	defer l.migrate.Release(1)

	if err := m.opts.rc.AcquireBackground(ctx); err != nil {
		return report, err
	}
	defer m.opts.rc.ReleaseBackground()

	m.mu.Lock()
	m.stores[backend.Location] = backend.Store
	m.mu.Unlock()

	runID, err := uuid.NewV7()
	if err != nil {
		return report, err
	}
	report.RunID = runID.String()

	start := time.Now()
	ids := m.HotIDs(tier)

	m.opts.logger.InfoContext(ctx, "migration started",
		"tier", tier, "backend", backend.Location, "records", len(ids), "run", report.RunID)

	for seq := 0; len(ids) > 0; seq++ {
		if err := ctx.Err(); err != nil {
			m.opts.logger.WarnContext(ctx, "migration cancelled", "tier", tier, "moved", report.MovedCount)
			return report, err
		}

		n := min(m.opts.batchSize, len(ids))
		batch := ids[:n]
		ids = ids[n:]

		name := path.Join(string(tier), fmt.Sprintf("%s-%06d.vtar", report.RunID, seq))
		if err := m.migrateBatch(ctx, tier, backend, name, batch, &report); err != nil {
			return report, err
		}
	}

	m.mu.Lock()
	if t, ok := m.tiers[tier]; ok {
		t.Backend = backend
		if b := m.members[tier]; b == nil || b.IsEmpty() {
			t.Archived = true
			t.Mode = ScanOnly
		}
	}
	m.mu.Unlock()

	slices.Sort(report.FailedIDs)

	m.opts.logger.InfoContext(ctx, "migration finished",
		"tier", tier, "moved", report.MovedCount, "failed", len(report.FailedIDs),
		"batches", report.Batches, "bytes", report.Bytes, "duration", time.Since(start))

	if len(report.FailedIDs) > 0 {
		return report, ErrMigrationPartialFailure
	}
	return report, nil
}

// migrateBatch archives one batch of ids. Failures of this batch are recorded
// in report; the returned error is fatal for the whole migration.
func (m *Manager) migrateBatch(ctx context.Context, tier model.TierID, backend Backend, name string, ids []model.ID, report *MigrationReport) error {
	snapshot := make(map[model.ID]model.Record, len(ids))
	recs := make([]model.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := m.store.Get(id)
		if err != nil || rec.Tier != tier {
			// Deleted or reclassified since the id list was taken.
			continue
		}
		snapshot[id] = rec
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil
	}

	fail := func(err error) {
		m.opts.logger.WarnContext(ctx, "batch failed", "tier", tier, "batch", name, "error", err)
		for _, rec := range recs {
			report.FailedIDs = append(report.FailedIDs, rec.ID)
		}
		_ = backend.Store.Delete(context.WithoutCancel(ctx), name)
	}

	summary, err := m.writeBatch(ctx, backend, name, recs)
	if err != nil {
		fail(err)
		return nil
	}

	verified, err := m.verifyBatch(ctx, backend, name, snapshot)
	if err != nil {
		fail(err)
		return nil
	}
	for _, rec := range recs {
		if !verified.Contains(uint64(rec.ID)) {
			report.FailedIDs = append(report.FailedIDs, rec.ID)
		}
	}
	if verified.IsEmpty() {
		_ = backend.Store.Delete(context.WithoutCancel(ctx), name)
		return nil
	}

	unlock := m.lockViews(tier)
	defer unlock()

	entry := catalog.Entry{
		Tier:      tier,
		Batch:     name,
		Backend:   backend.Location,
		Visible:   verified,
		Rows:      summary.Rows,
		FirstID:   summary.FirstID,
		LastID:    summary.LastID,
		CreatedAt: m.opts.now().UTC(),
		RunID:     report.RunID,
	}
	if err := m.catalog.Put(ctx, entry); err != nil {
		fail(err)
		return nil
	}

	// The archive copy is now visible. Remove the hot copies that still
	// match it and hide the ones that do not.
	var hidden []model.ID
	it := verified.Iterator()
	for it.HasNext() {
		id := model.ID(it.Next())
		ok, err := m.store.CompareAndDelete(ctx, snapshot[id])
		switch {
		case errors.Is(err, vectorstore.ErrNotFound):
			hidden = append(hidden, id)
		case err != nil:
			return err
		case !ok:
			hidden = append(hidden, id)
			report.FailedIDs = append(report.FailedIDs, id)
		default:
			report.MovedCount++
		}
	}
	if len(hidden) > 0 {
		if err := m.catalog.Hide(ctx, tier, name, hidden); err != nil {
			return fmt.Errorf("tier: hide changed records of %s: %w", name, err)
		}
	}

	report.Batches++
	report.Bytes += summary.Bytes

	m.opts.logger.DebugContext(ctx, "batch archived",
		"tier", tier, "batch", name, "rows", summary.Rows, "bytes", summary.Bytes, "hidden", len(hidden))
	return nil
}

func (m *Manager) writeBatch(ctx context.Context, backend Backend, name string, recs []model.Record) (archive.Summary, error) {
	blob, err := backend.Store.Create(ctx, name)
	if err != nil {
		return archive.Summary{}, err
	}

	w, err := archive.NewWriter(
		resource.NewRateLimitedWriter(ctx, blob, m.opts.rc),
		m.store.Dimension(),
		archive.WithCodec(m.opts.codec),
		archive.WithTier(recs[0].Tier),
	)
	if err != nil {
		_ = blob.Close()
		return archive.Summary{}, err
	}

	for _, rec := range recs {
		if err := w.Append(rec); err != nil {
			_ = blob.Close()
			return archive.Summary{}, err
		}
	}

	summary, err := w.Close()
	if err != nil {
		_ = blob.Close()
		return archive.Summary{}, err
	}
	if err := blob.Sync(); err != nil {
		_ = blob.Close()
		return archive.Summary{}, err
	}
	if err := blob.Close(); err != nil {
		return archive.Summary{}, err
	}
	return summary, nil
}

// verifyBatch reads the batch back and returns the ids whose stored copy is
// bit-identical to the snapshot.
func (m *Manager) verifyBatch(ctx context.Context, backend Backend, name string, snapshot map[model.ID]model.Record) (*roaring64.Bitmap, error) {
	blob, err := backend.Store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := archive.Open(ctx, blob)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}
	defer r.Close()

	verified := roaring64.New()
	for rec, err := range r.All(ctx) {
		if err != nil {
			return nil, err
		}
		if err := m.opts.rc.AcquireIO(ctx, len(rec.Vector)*4); err != nil {
			return nil, err
		}
		want, ok := snapshot[rec.ID]
		if ok && vectorstore.SameVector(want.Vector, rec.Vector) &&
			want.CreatedAt.Equal(rec.CreatedAt) && want.UpdatedAt.Equal(rec.UpdatedAt) {
			verified.Add(uint64(rec.ID))
		}
	}
	return verified, nil
}

// ReclassifyBoundary installs classifier and re-runs classification.
//
// Hot records whose tier changes are re-tiered in place. Archived records
// whose new tier is not archived are promoted back into the hot store. A
// second run with the same classifier moves nothing.
func (m *Manager) ReclassifyBoundary(ctx context.Context, classifier Classifier) (MigrationReport, error) {
	var report MigrationReport

	if m.closed.Load() {
		return report, ErrClosed
	}
	if classifier == nil {
		return report, errors.New("tier: nil classifier")
	}
	m.classifier.Store(&classifier)

	// Collect first so SetTier does not run while iterating the store.
	type move struct {
		id   model.ID
		tier model.TierID
	}
	var moves []move
	for rec := range m.store.Scan(nil) {
		if t := classifier(rec); t != rec.Tier {
			moves = append(moves, move{id: rec.ID, tier: t})
		}
	}
	for i, mv := range moves {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		if err := m.store.SetTier(ctx, mv.id, mv.tier); err != nil {
			if errors.Is(err, vectorstore.ErrNotFound) {
				continue
			}
			return report, err
		}
		report.MovedCount++
	}

	tiers, err := m.catalog.Tiers(ctx)
	if err != nil {
		return report, err
	}
	for _, t := range tiers {
		if err := m.promote(ctx, t, classifier, &report); err != nil {
			return report, err
		}
	}

	m.opts.logger.InfoContext(ctx, "reclassification finished",
		"moved", report.MovedCount, "failed", len(report.FailedIDs))

	if len(report.FailedIDs) > 0 {
		return report, ErrMigrationPartialFailure
	}
	return report, nil
}

func (m *Manager) promote(ctx context.Context, source model.TierID, classifier Classifier, report *MigrationReport) error {
	entries, err := m.catalog.Entries(ctx, source)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.VisibleCount() == 0 {
			continue
		}
		r, err := m.OpenBatch(ctx, e)
		if err != nil {
			return err
		}

		var recs []model.Record
		for rec, err := range r.All(ctx) {
			if err != nil {
				return err
			}
			if !e.Contains(rec.ID) {
				continue
			}
			rec.Tier = classifier(rec)
			if rec.Tier == source || m.archived(rec.Tier) {
				continue
			}
			recs = append(recs, rec)
		}

		for _, rec := range recs {
			if err := m.promoteRecord(ctx, e, rec); err != nil {
				m.opts.logger.WarnContext(ctx, "promotion failed", "id", rec.ID, "error", err)
				report.FailedIDs = append(report.FailedIDs, rec.ID)
				continue
			}
			report.MovedCount++
		}
	}
	return nil
}

func (m *Manager) promoteRecord(ctx context.Context, e catalog.Entry, rec model.Record) error {
	unlock := m.lockViews(e.Tier, rec.Tier)
	defer unlock()

	// A hot record with the same id is newer than the archived copy.
	if m.store.Contains(rec.ID) {
		return m.catalog.Hide(ctx, e.Tier, e.Batch, []model.ID{rec.ID})
	}

	if err := m.store.PutRecord(ctx, rec); err != nil {
		return err
	}
	if err := m.catalog.Hide(ctx, e.Tier, e.Batch, []model.ID{rec.ID}); err != nil {
		if _, derr := m.store.CompareAndDelete(ctx, rec); derr != nil {
			err = errors.Join(err, derr)
		}
		return err
	}
	return nil
}

func (m *Manager) archived(tier model.TierID) bool {
	t, ok := m.Tier(tier)
	return ok && t.Archived
}
