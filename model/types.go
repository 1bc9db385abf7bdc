package model

import (
	"fmt"
	"slices"
	"time"
)

// ID is the user-facing stable identifier of a record.
// It is unique and immutable once assigned.
type ID uint64

// TierID names a partition of records (e.g. "2020", "hot").
type TierID string

// Record represents a full data record.
type Record struct {
	ID        ID
	Vector    []float32
	CreatedAt time.Time
	// UpdatedAt is the zero time if the record was never updated.
	UpdatedAt time.Time
	Tier      TierID
}

// Updated reports whether the record has been updated since creation.
func (r Record) Updated() bool {
	return !r.UpdatedAt.IsZero()
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Vector = slices.Clone(r.Vector)
	return r
}

func (r Record) String() string {
	return fmt.Sprintf("Record(%d, dim=%d, tier=%q)", r.ID, len(r.Vector), r.Tier)
}

// Neighbor is an (id, distance) pair produced by an index.
type Neighbor struct {
	ID       ID
	Distance float32
}

// SearchResult is a ranked match returned to callers.
type SearchResult struct {
	ID       ID
	Distance float32
	// Tier is the tier the match was served from.
	Tier TierID
}

// Less orders search results by ascending distance, ties by ascending id.
func (r SearchResult) Less(o SearchResult) bool {
	if r.Distance != o.Distance {
		return r.Distance < o.Distance
	}
	return r.ID < o.ID
}

// Less orders neighbors by ascending distance, ties by ascending id.
func (n Neighbor) Less(o Neighbor) bool {
	if n.Distance != o.Distance {
		return n.Distance < o.Distance
	}
	return n.ID < o.ID
}

// CompareNeighbors is a slices.SortFunc comparator for neighbors.
func CompareNeighbors(a, b Neighbor) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// CompareResults is a slices.SortFunc comparator for search results.
func CompareResults(a, b SearchResult) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}
