package vectier

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
//	type PrometheusCollector struct {
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSearch(k int, d time.Duration, err error) {
//	    p.searchHistogram.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordInsert is called after each insert operation.
	RecordInsert(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of results requested.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordUpdate is called after each update operation.
	RecordUpdate(duration time.Duration, err error)

	// RecordMigration is called after each tier migration.
	// moved and failed count the records that left and stayed in the hot tier.
	RecordMigration(moved, failed int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)              {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)              {}
func (NoopMetricsCollector) RecordUpdate(time.Duration, error)              {}
func (NoopMetricsCollector) RecordMigration(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	UpdateCount      atomic.Int64
	UpdateErrors     atomic.Int64
	MigrationCount   atomic.Int64
	MigrationErrors  atomic.Int64
	MigratedRecords  atomic.Int64
	MigrationFailed  atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(_ time.Duration, err error) {
	b.UpdateCount.Add(1)
	if err != nil {
		b.UpdateErrors.Add(1)
	}
}

// RecordMigration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMigration(moved, failed int, _ time.Duration, err error) {
	b.MigrationCount.Add(1)
	b.MigratedRecords.Add(int64(moved))
	b.MigrationFailed.Add(int64(failed))
	if err != nil {
		b.MigrationErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:     b.InsertCount.Load(),
		InsertErrors:    b.InsertErrors.Load(),
		InsertAvgNanos:  avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:     b.DeleteCount.Load(),
		DeleteErrors:    b.DeleteErrors.Load(),
		UpdateCount:     b.UpdateCount.Load(),
		UpdateErrors:    b.UpdateErrors.Load(),
		MigrationCount:  b.MigrationCount.Load(),
		MigrationErrors: b.MigrationErrors.Load(),
		MigratedRecords: b.MigratedRecords.Load(),
		MigrationFailed: b.MigrationFailed.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount     int64
	InsertErrors    int64
	InsertAvgNanos  int64
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	DeleteCount     int64
	DeleteErrors    int64
	UpdateCount     int64
	UpdateErrors    int64
	MigrationCount  int64
	MigrationErrors int64
	MigratedRecords int64
	MigrationFailed int64
}
