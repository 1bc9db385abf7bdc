package vectier

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/vectier/index/diskann"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/tier"
)

type (
	// MigrationReport describes the outcome of MigrateTier or ReclassifyBoundary.
	MigrationReport = tier.MigrationReport
	// RepairReport describes one index repair.
	RepairReport = diskann.RepairReport
	// IndexState is the lifecycle state of a per-tier index.
	IndexState = diskann.State
	// IndexStats summarizes a per-tier index.
	IndexStats = diskann.Stats
)

// Index states.
const (
	IndexEmpty    = diskann.StateEmpty
	IndexBuilding = diskann.StateBuilding
	IndexReady    = diskann.StateReady
	IndexDegraded = diskann.StateDegraded
	IndexClosed   = diskann.StateClosed
)

// MigrateTier moves the hot records of t to the configured archival backend.
//
// Every record is verified in the archive before it leaves the hot store.
// Records that could not be moved stay hot and are listed in
// MigrationReport.FailedIDs, and ErrMigrationPartialFailure is returned.
func (db *DB) MigrateTier(ctx context.Context, t model.TierID) (MigrationReport, error) {
	return db.MigrateTierTo(ctx, t, db.opts.backend)
}

// MigrateTierTo is like MigrateTier with an explicit backend.
func (db *DB) MigrateTierTo(ctx context.Context, t model.TierID, backend tier.Backend) (report MigrationReport, err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		db.opts.metricsCollector.RecordMigration(report.MovedCount, len(report.FailedIDs), d, err)
		db.opts.logger.LogMigration(ctx, report, d, err)
	}()

	if db.closed.Load() {
		return MigrationReport{}, ErrClosed
	}

	report, err = db.tiers.Migrate(ctx, t, backend)
	if db.tiers.Counts()[t] == 0 {
		db.indexes.drop(t)
	}
	return report, translateError(err)
}

// ReclassifyBoundary installs classifier and moves every record, hot or
// archived, whose tier changes. Archived records moving to a hot tier are
// promoted back to the store. Running it twice moves nothing the second time.
func (db *DB) ReclassifyBoundary(ctx context.Context, classifier tier.Classifier) (report MigrationReport, err error) {
	start := time.Now()
	defer func() {
		db.opts.logger.LogMigration(ctx, report, time.Since(start), err)
	}()

	if db.closed.Load() {
		return MigrationReport{}, ErrClosed
	}

	report, err = db.tiers.ReclassifyBoundary(ctx, classifier)
	counts := db.tiers.Counts()
	for _, st := range db.tiers.Tiers() {
		if counts[st.ID] == 0 {
			db.indexes.drop(st.ID)
		}
	}
	return report, translateError(err)
}

// Repair removes tombstoned nodes from every per-tier index and reconnects
// their neighbors. Indexes leave the degraded state once repaired.
func (db *DB) Repair(ctx context.Context) (map[model.TierID]RepairReport, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	reports, err := db.indexes.repair(ctx)
	for t, r := range reports {
		db.opts.logger.LogRepair(ctx, t, r.Removed, r.Rewired, nil)
	}
	if err != nil {
		db.opts.logger.ErrorContext(ctx, "repair failed", "error", err)
	}
	return reports, translateError(err)
}

// Rebuild replaces the index of t with one built from scratch over the
// tier's hot records. It fails with ErrBuild for fewer than two records.
func (db *DB) Rebuild(ctx context.Context, t model.TierID) error {
	if db.closed.Load() {
		return ErrClosed
	}

	err := db.indexes.rebuild(ctx, t)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		db.opts.logger.WithTier(t).ErrorContext(ctx, "rebuild failed", "error", err)
	}
	return translateError(err)
}
