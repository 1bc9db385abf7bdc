package vectier

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/tier"
)

// Logger wraps slog.Logger with vectier-specific fields.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithTier adds a tier field to the logger.
func (l *Logger) WithTier(t model.TierID) *Logger {
	return &Logger{Logger: l.Logger.With("tier", string(t))}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, id model.ID, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed", "id", id, "dimension", dimension, "error", err)
		return
	}
	l.DebugContext(ctx, "insert completed", "id", id, "dimension", dimension)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k int, res Result, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "k", k, "error", err)
		return
	}
	if res.Degraded {
		l.WarnContext(ctx, "search served by degraded index", "k", k, "results", len(res.Results))
	}
	l.DebugContext(ctx, "search completed",
		"k", k,
		"results", len(res.Results),
		"partial", res.Partial,
	)
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id model.ID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed", "id", id, "error", err)
		return
	}
	l.DebugContext(ctx, "delete completed", "id", id)
}

// LogUpdate logs an update operation.
func (l *Logger) LogUpdate(ctx context.Context, id model.ID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed", "id", id, "error", err)
		return
	}
	l.DebugContext(ctx, "update completed", "id", id)
}

// LogMigration logs a tier migration or boundary reclassification.
func (l *Logger) LogMigration(ctx context.Context, report tier.MigrationReport, d time.Duration, err error) {
	attrs := []any{
		"tier", string(report.Tier),
		"run_id", report.RunID,
		"moved", report.MovedCount,
		"failed", len(report.FailedIDs),
		"batches", report.Batches,
		"bytes", report.Bytes,
		"duration", d,
	}
	if err != nil {
		l.ErrorContext(ctx, "migration failed", append(attrs, "error", err)...)
		return
	}
	l.InfoContext(ctx, "migration completed", attrs...)
}

// LogRepair logs an index repair.
func (l *Logger) LogRepair(ctx context.Context, t model.TierID, removed, rewired int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "repair failed", "tier", string(t), "error", err)
		return
	}
	l.InfoContext(ctx, "repair completed", "tier", string(t), "removed", removed, "rewired", rewired)
}
