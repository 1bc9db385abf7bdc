package diskann

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/vectier/internal/simd"
	"github.com/hupe1980/vectier/model"
)

// Build replaces the graph with one constructed from records, all assigned to tier.
//
// The medoid (record closest to the centroid) seeds the graph; every other
// record is then inserted in order. ctx is checked every 1000 records: on
// cancellation the records inserted so far stay searchable, the index is left
// Degraded and ctx.Err() is returned.
func (idx *Index) Build(ctx context.Context, records []model.Record, tier model.TierID) error {
	if idx.isClosed() {
		return ErrClosed
	}
	if len(records) < 2 {
		return fmt.Errorf("%w: need at least 2 records, got %d", ErrBuild, len(records))
	}

	dim := idx.source.Dimension()
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %d has dimension %d, expected %d", ErrBuild, r.ID, len(r.Vector), dim)
		}
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()

	idx.reset()
	idx.state.Store(int32(StateBuilding))

	overlay := make(map[model.ID][]float32, len(records))
	for _, r := range records {
		overlay[r.ID] = r.Vector
	}
	idx.overlay.Store(&overlay)
	defer idx.overlay.Store(nil)

	medoid := medoidIndex(records)
	order := make([]int, 0, len(records))
	order = append(order, medoid)
	for i := range records {
		if i != medoid {
			order = append(order, i)
		}
	}

	idx.logger.Info("building diskann index", "records", len(records), "tier", tier, "medoid", records[medoid].ID)

	for i, ri := range order {
		if i > 0 && i%buildCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				idx.casState(StateBuilding, StateDegraded)
				idx.logger.Warn("diskann build cancelled", "inserted", i, "records", len(records))
				return err
			}
		}

		r := records[ri]
		n := idx.getOrCreateNode(r.ID, tier)
		idx.insertNode(ctx, n, r.Vector)
	}

	idx.casState(StateBuilding, StateReady)
	idx.logger.Info("diskann index built", "nodes", idx.Stats().Nodes)
	return nil
}

func (idx *Index) reset() {
	idx.mu.Lock()
	idx.nodes = make(map[model.ID]*node, len(idx.nodes))
	idx.mu.Unlock()

	idx.entry.Store(nil)

	idx.tombMu.Lock()
	idx.tombstones = roaring64.New()
	idx.tombCount.Store(0)
	idx.tombMu.Unlock()
}

// medoidIndex returns the index of the record closest to the centroid (ties by id).
func medoidIndex(records []model.Record) int {
	dim := len(records[0].Vector)

	sum := make([]float64, dim)
	for _, r := range records {
		for j, v := range r.Vector {
			sum[j] += float64(v)
		}
	}
	centroid := make([]float32, dim)
	for j := range sum {
		centroid[j] = float32(sum[j] / float64(len(records)))
	}

	best := 0
	bestDist := simd.SquaredL2(centroid, records[0].Vector)
	for i := 1; i < len(records); i++ {
		d := simd.SquaredL2(centroid, records[i].Vector)
		if d < bestDist || (d == bestDist && records[i].ID < records[best].ID) {
			best, bestDist = i, d
		}
	}
	return best
}
