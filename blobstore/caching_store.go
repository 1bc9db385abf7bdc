package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/vectier/internal/cache"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the cache block size used when none is configured.
const DefaultBlockSize = 64 << 10

// maxParallelFetches bounds concurrent backend reads per ReadAt call.
const maxParallelFetches = 16

// CachingStore wraps a BlobStore with a block cache for reads. Writes and
// deletes invalidate the cached blocks of the affected blob.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

var _ BlobStore = (*CachingStore)(nil)

// NewCachingStore wraps inner. blockSize defaults to DefaultBlockSize.
func NewCachingStore(inner BlobStore, c cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &CachingStore{inner: inner, cache: c, blockSize: blockSize}
}

// Open opens name on the inner store and serves reads through the cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{inner: b, cache: s.cache, name: name, blockSize: s.blockSize}, nil
}

// Create passes through; cached blocks of name are invalidated first.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

// Put passes through after invalidating name.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete passes through after invalidating name.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List passes through.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.cache.Invalidate(func(k cache.Key) bool { return k.Blob == name })
}

type cachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *cachingBlob) Size() int64 { return b.inner.Size() }

func (b *cachingBlob) Close() error { return b.inner.Close() }

func (b *cachingBlob) key(blk int64) cache.Key {
	return cache.Key{Blob: b.name, Offset: blk * b.blockSize}
}

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), size)
	first := off / b.blockSize
	last := (end - 1) / b.blockSize

	blocks, err := b.load(ctx, first, last)
	if err != nil {
		return 0, err
	}

	n := 0
	for i, data := range blocks {
		blkStart := (first + int64(i)) * b.blockSize
		lo := max(off, blkStart) - blkStart
		hi := min(end, blkStart+int64(len(data))) - blkStart
		if hi <= lo {
			break
		}
		n += copy(p[n:], data[lo:hi])
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// load returns blocks first..last, fetching contiguous runs of missing
// blocks with one backend read per run.
func (b *cachingBlob) load(ctx context.Context, first, last int64) ([][]byte, error) {
	blocks := make([][]byte, last-first+1)

	type run struct{ start, count int64 }
	var missing []run
	for blk := first; blk <= last; blk++ {
		if data, ok := b.cache.Get(ctx, b.key(blk)); ok {
			blocks[blk-first] = data
			continue
		}
		if n := len(missing); n > 0 && missing[n-1].start+missing[n-1].count == blk {
			missing[n-1].count++
			continue
		}
		missing = append(missing, run{start: blk, count: 1})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for _, r := range missing {
		g.Go(func() error {
			start := r.start * b.blockSize
			length := min(r.count*b.blockSize, b.Size()-start)

			buf := make([]byte, length)
			n, err := b.inner.ReadAt(gctx, buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]

			for i := range r.count {
				lo := i * b.blockSize
				if lo >= int64(len(buf)) {
					break
				}
				hi := min(lo+b.blockSize, int64(len(buf)))
				// Copy so a cached block does not pin the whole run.
				data := make([]byte, hi-lo)
				copy(data, buf[lo:hi])

				// Each goroutine owns a disjoint range of blocks.
				blocks[r.start-first+i] = data
				b.cache.Set(gctx, b.key(r.start+i), data)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}
