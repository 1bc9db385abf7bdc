package searcher

import (
	"sync"

	"github.com/hupe1980/vectier/model"
)

// Visited tracks visited ids during one traversal.
// Ids are sparse user ids, so a map is used instead of a bitset.
type Visited struct {
	seen map[model.ID]struct{}
}

var visitedPool = sync.Pool{
	New: func() any {
		return &Visited{seen: make(map[model.ID]struct{}, 256)}
	},
}

// GetVisited returns an empty visited set from the pool.
func GetVisited() *Visited {
	return visitedPool.Get().(*Visited)
}

// PutVisited returns v to the pool.
func PutVisited(v *Visited) {
	// Oversized maps are dropped to bound pool memory.
	if len(v.seen) > 1<<16 {
		return
	}
	clear(v.seen)
	visitedPool.Put(v)
}

// Visit marks id and reports whether it was newly visited.
func (v *Visited) Visit(id model.ID) bool {
	if _, ok := v.seen[id]; ok {
		return false
	}
	v.seen[id] = struct{}{}
	return true
}

// Contains reports whether id was visited.
func (v *Visited) Contains(id model.ID) bool {
	_, ok := v.seen[id]
	return ok
}

// Len returns the number of visited ids.
func (v *Visited) Len() int { return len(v.seen) }
