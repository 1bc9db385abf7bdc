package router

import (
	"github.com/hupe1980/vectier/internal/searcher"
	"github.com/hupe1980/vectier/model"
)

type cursor struct {
	list int
	pos  int
	head model.SearchResult
}

// Merge combines lists that are each sorted by ascending distance (ties by
// id) into the k best results. An id appearing in several lists is kept once,
// with its best entry.
func Merge(lists [][]model.SearchResult, k int) []model.SearchResult {
	if k <= 0 {
		return nil
	}

	h := searcher.NewHeap(len(lists), func(a, b cursor) bool { return a.head.Less(b.head) })
	for i, l := range lists {
		if len(l) > 0 {
			h.Push(cursor{list: i, head: l[0]})
		}
	}

	out := make([]model.SearchResult, 0, k)
	seen := make(map[model.ID]struct{}, k)
	for h.Len() > 0 && len(out) < k {
		c, _ := h.Peek()
		if _, dup := seen[c.head.ID]; !dup {
			seen[c.head.ID] = struct{}{}
			out = append(out, c.head)
		}

		if next := c.pos + 1; next < len(lists[c.list]) {
			h.ReplaceTop(cursor{list: c.list, pos: next, head: lists[c.list][next]})
		} else {
			h.Pop()
		}
	}
	return out
}
