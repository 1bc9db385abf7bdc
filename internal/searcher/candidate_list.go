package searcher

import (
	"sort"

	"github.com/hupe1980/vectier/model"
)

type entry struct {
	model.Neighbor
	expanded bool
}

// CandidateList is the bounded search list L of a greedy beam search.
//
// Entries are kept sorted (distance asc, id asc). When the list is full an
// insert evicts the current worst entry if the new entry is better.
// CandidateList is not thread-safe.
type CandidateList struct {
	items    []entry
	capacity int
	// cursor is the lowest position that may hold an unexpanded entry.
	cursor int
}

// NewCandidateList creates a list holding at most capacity entries.
func NewCandidateList(capacity int) *CandidateList {
	if capacity < 1 {
		capacity = 1
	}
	return &CandidateList{
		items:    make([]entry, 0, capacity+1),
		capacity: capacity,
	}
}

// Reset clears the list and sets a new capacity.
func (l *CandidateList) Reset(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	l.items = l.items[:0]
	l.capacity = capacity
	l.cursor = 0
}

// Len returns the number of entries.
func (l *CandidateList) Len() int { return len(l.items) }

// Cap returns the capacity.
func (l *CandidateList) Cap() int { return l.capacity }

// Grow raises the capacity by n. Entries that should not count against the
// beam width are inserted after a Grow(1).
func (l *CandidateList) Grow(n int) {
	if n > 0 {
		l.capacity += n
	}
}

// Accepts reports whether Insert would keep n.
func (l *CandidateList) Accepts(n model.Neighbor) bool {
	return !l.Full() || n.Less(l.items[len(l.items)-1].Neighbor)
}

// Full reports whether the list holds capacity entries.
func (l *CandidateList) Full() bool { return len(l.items) >= l.capacity }

// Worst returns the last (worst) entry.
func (l *CandidateList) Worst() (model.Neighbor, bool) {
	if len(l.items) == 0 {
		return model.Neighbor{}, false
	}
	return l.items[len(l.items)-1].Neighbor, true
}

// Insert adds n if there is room or n is better than the worst entry.
// It reports whether n was inserted. Duplicate ids are the caller's concern
// (the visited set prevents them).
func (l *CandidateList) Insert(n model.Neighbor) bool {
	if !l.Accepts(n) {
		return false
	}

	pos := sort.Search(len(l.items), func(i int) bool {
		return n.Less(l.items[i].Neighbor)
	})

	l.items = append(l.items, entry{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = entry{Neighbor: n}

	if len(l.items) > l.capacity {
		l.items = l.items[:l.capacity]
	}
	if pos < l.cursor {
		l.cursor = pos
	}
	return true
}

// NextUnexpanded returns the closest entry not yet expanded and marks it expanded.
func (l *CandidateList) NextUnexpanded() (model.Neighbor, bool) {
	for l.cursor < len(l.items) {
		e := &l.items[l.cursor]
		l.cursor++
		if !e.expanded {
			e.expanded = true
			return e.Neighbor, true
		}
	}
	return model.Neighbor{}, false
}

// Items appends the entries in order to dst and returns it.
func (l *CandidateList) Items(dst []model.Neighbor) []model.Neighbor {
	for _, e := range l.items {
		dst = append(dst, e.Neighbor)
	}
	return dst
}
