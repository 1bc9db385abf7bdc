package vectier

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
)

// Result is the outcome of a search.
type Result struct {
	// Results are ordered by ascending distance, ties by ascending id.
	Results []model.SearchResult
	// Partial is set when the deadline expired or a scan bound was hit
	// before every tier was fully searched.
	Partial bool
	// Degraded is set when a degraded index served part of the query.
	Degraded bool
}

// Advisory returns ErrIndexDegraded for results served by a degraded index.
func (r Result) Advisory() error {
	if r.Degraded {
		return ErrIndexDegraded
	}
	return nil
}

type searchOptions struct {
	metric   distance.Metric
	deadline time.Time
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

// WithMetric overrides the default metric. Tiers whose index uses another
// metric are answered by an exact scan.
func WithMetric(m distance.Metric) SearchOption {
	return func(o *searchOptions) {
		o.metric = m
	}
}

// WithDeadline bounds the search. When it expires the results gathered so
// far are returned and marked partial.
func WithDeadline(t time.Time) SearchOption {
	return func(o *searchOptions) {
		o.deadline = t
	}
}

// Search returns the k nearest records to q across all tiers.
func (db *DB) Search(ctx context.Context, q []float32, k int, optFns ...SearchOption) (res Result, err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
		db.opts.logger.LogSearch(ctx, k, res, err)
	}()

	if db.closed.Load() {
		return Result{}, ErrClosed
	}

	so := searchOptions{metric: db.opts.metric}
	for _, fn := range optFns {
		fn(&so)
	}

	if !so.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, so.deadline)
		defer cancel()
	}

	r, err := db.router.Query(ctx, q, k, so.metric)
	if err != nil {
		return Result{}, translateError(err)
	}
	return Result{Results: r.Results, Partial: r.Partial, Degraded: r.Degraded}, nil
}

// SearchText embeds text and searches for its k nearest records.
func (db *DB) SearchText(ctx context.Context, text string, k int, optFns ...SearchOption) (Result, error) {
	vec, err := db.embed(ctx, text)
	if err != nil {
		return Result{}, err
	}
	return db.Search(ctx, vec, k, optFns...)
}

// InsertText embeds text and inserts it under id.
func (db *DB) InsertText(ctx context.Context, id model.ID, text string, ts time.Time) error {
	vec, err := db.embed(ctx, text)
	if err != nil {
		return err
	}
	return db.Insert(ctx, id, vec, ts)
}

func (db *DB) embed(ctx context.Context, text string) ([]float32, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if db.opts.embedder == nil {
		return nil, ErrNoEmbedder
	}

	vecs, err := db.opts.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, translateError(err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 input", ErrEmbeddingUnavailable, len(vecs))
	}
	return vecs[0], nil
}
