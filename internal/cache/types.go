package cache

import "context"

// Key identifies one block of a blob.
type Key struct {
	Blob   string
	Offset int64
}

// BlockCache is a byte-oriented cache for immutable blocks.
type BlockCache interface {
	Get(ctx context.Context, key Key) ([]byte, bool)
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes the entries matching pred.
	Invalidate(pred func(Key) bool)
	Stats() Stats
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Entries   int
	SizeBytes int64
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
