package diskann

import (
	"context"
	"errors"

	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/vectorstore"
)

type observer struct {
	idx *Index
}

// Observer adapts idx to the vector store observer contract for single-tier
// use: every put is inserted (or updated) and every delete tombstoned.
func Observer(idx *Index) vectorstore.Observer {
	return observer{idx: idx}
}

func (o observer) OnPut(ctx context.Context, rec model.Record, _ *model.Record) {
	if err := o.idx.Insert(ctx, rec.ID, rec.Tier); err != nil && !errors.Is(err, ErrClosed) {
		o.idx.logger.WarnContext(ctx, "index insert failed", "id", rec.ID, "error", err)
	}
}

func (o observer) OnDelete(_ context.Context, rec model.Record) {
	if o.idx.isClosed() {
		return
	}
	if n := o.idx.node(rec.ID); n != nil {
		o.idx.tombstone(n, rec.Vector)
	}
}

// Track adapts idx to the observer contract for one tier of a multi-tier
// store: records entering tier are inserted, records leaving it tombstoned.
func Track(idx *Index, tier model.TierID) vectorstore.Observer {
	return tierObserver{idx: idx, tier: tier}
}

type tierObserver struct {
	idx  *Index
	tier model.TierID
}

func (o tierObserver) OnPut(ctx context.Context, rec model.Record, prev *model.Record) {
	if rec.Tier == o.tier {
		observer{idx: o.idx}.OnPut(ctx, rec, prev)
		return
	}
	if prev != nil && prev.Tier == o.tier {
		observer{idx: o.idx}.OnDelete(ctx, *prev)
	}
}

func (o tierObserver) OnDelete(ctx context.Context, rec model.Record) {
	if rec.Tier == o.tier {
		observer{idx: o.idx}.OnDelete(ctx, rec)
	}
}
