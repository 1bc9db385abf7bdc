package diskann

import (
	"slices"

	"github.com/hupe1980/vectier/model"
)

// robustPrune selects at most MaxDegree diverse neighbors for p.
//
// cands carry distances to p. Candidates are visited in ascending distance
// (ties by id); c is dropped when an already selected s satisfies
// alpha * d(s, c) <= d(p, c). Tombstoned, unknown and self candidates are skipped.
func (idx *Index) robustPrune(p model.ID, cands []model.Neighbor) []model.ID {
	if len(cands) == 0 {
		return nil
	}

	slices.SortFunc(cands, model.CompareNeighbors)

	r := idx.cfg.MaxDegree
	selected := make([]model.ID, 0, r)
	selectedVecs := make([][]float32, 0, r)

	for _, c := range cands {
		if len(selected) >= r {
			break
		}
		if c.ID == p || slices.Contains(selected, c.ID) {
			continue
		}
		cn := idx.node(c.ID)
		if cn == nil || cn.tombstoned.Load() {
			continue
		}
		cv, ok := idx.vectorOf(cn)
		if !ok {
			continue
		}

		dominated := false
		for _, sv := range selectedVecs {
			if idx.pruneAlpha*idx.dist(sv, cv) <= c.Distance {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}

		selected = append(selected, c.ID)
		selectedVecs = append(selectedVecs, cv)
	}

	return selected
}

// neighborsWithDistances resolves ids to (id, d(vec, id)) pairs, skipping
// ids without a vector.
func (idx *Index) neighborsWithDistances(vec []float32, ids []model.ID, dst []model.Neighbor) []model.Neighbor {
	for _, id := range ids {
		n := idx.node(id)
		if n == nil {
			continue
		}
		v, ok := idx.vectorOf(n)
		if !ok {
			continue
		}
		dst = append(dst, model.Neighbor{ID: id, Distance: idx.dist(vec, v)})
	}
	return dst
}
