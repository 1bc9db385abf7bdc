package archive

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/model"
)

// Reader provides random and sequential access to one batch.
type Reader struct {
	blob   blobstore.Blob
	header Header
	groups []RowGroup
	rows   int
}

// Open validates the trailer, footer and header of the batch in b. The
// reader takes ownership of b and closes it in Close.
func Open(ctx context.Context, b blobstore.Blob) (*Reader, error) {
	size := b.Size()
	if size < headerFixedSize+4+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, size)
	}

	tbuf, err := readFull(ctx, b, size-trailerSize, trailerSize)
	if err != nil {
		return nil, err
	}
	t, err := decodeTrailer(tbuf)
	if err != nil {
		return nil, err
	}
	if t.footerOffset < headerFixedSize || t.footerOffset+int64(t.footerLength)+trailerSize != size {
		return nil, fmt.Errorf("%w: footer location", ErrCorrupt)
	}

	footer, err := readFull(ctx, b, t.footerOffset, t.footerLength)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(footer) != t.footerChecksum {
		return nil, fmt.Errorf("%w: footer", ErrChecksum)
	}

	count := int(binary.LittleEndian.Uint32(footer))
	if len(footer) != 4+count*dirEntrySize {
		return nil, fmt.Errorf("%w: footer length", ErrCorrupt)
	}

	hbuf, err := readFull(ctx, b, 0, headerFixedSize)
	if err != nil {
		return nil, err
	}
	h, tierLen, err := decodeHeaderFixed(hbuf)
	if err != nil {
		return nil, err
	}
	if tierLen > 0 {
		tier, err := readFull(ctx, b, headerFixedSize, tierLen)
		if err != nil {
			return nil, err
		}
		h.Tier = model.TierID(tier)
	}

	r := &Reader{blob: b, header: h, groups: make([]RowGroup, count)}
	for i := range r.groups {
		g := decodeRowGroup(footer[4+i*dirEntrySize:])
		if g.Offset < int64(headerFixedSize+tierLen) || g.Offset+int64(g.Length) > t.footerOffset || g.Rows <= 0 {
			return nil, fmt.Errorf("%w: row group %d bounds", ErrCorrupt, i)
		}
		if i > 0 && g.FirstID <= r.groups[i-1].LastID {
			return nil, fmt.Errorf("%w: row group %d order", ErrCorrupt, i)
		}
		r.groups[i] = g
		r.rows += g.Rows
	}
	return r, nil
}

func readFull(ctx context.Context, b blobstore.Blob, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := b.ReadAt(ctx, buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: short read at %d", ErrCorrupt, off)
	}
	return nil, err
}

// Header returns the batch header.
func (r *Reader) Header() Header { return r.header }

// Dimension returns the vector dimension.
func (r *Reader) Dimension() int { return r.header.Dimension }

// Tier returns the tier recorded in the header.
func (r *Reader) Tier() model.TierID { return r.header.Tier }

// Len returns the number of records.
func (r *Reader) Len() int { return r.rows }

// RowGroups returns the footer directory.
func (r *Reader) RowGroups() []RowGroup { return r.groups }

// Close closes the underlying blob.
func (r *Reader) Close() error { return r.blob.Close() }

// ReadRowGroup reads, verifies and decodes row group i.
func (r *Reader) ReadRowGroup(ctx context.Context, i int) ([]model.Record, error) {
	if i < 0 || i >= len(r.groups) {
		return nil, fmt.Errorf("archive: row group %d out of range", i)
	}
	g := r.groups[i]

	stored, err := readFull(ctx, r.blob, g.Offset, g.Length)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(stored) != g.Checksum {
		return nil, fmt.Errorf("%w: row group %d", ErrChecksum, i)
	}

	raw, err := decodeBlock(stored, r.header.Codec)
	if err != nil {
		return nil, err
	}
	return decodeRows(raw, g.Rows, r.header.Dimension, r.header.Tier)
}

// Get returns the record with id by reading the single row group whose id
// range covers it.
func (r *Reader) Get(ctx context.Context, id model.ID) (model.Record, error) {
	i := sort.Search(len(r.groups), func(i int) bool { return r.groups[i].LastID >= id })
	if i == len(r.groups) || r.groups[i].FirstID > id {
		return model.Record{}, ErrNotFound
	}

	recs, err := r.ReadRowGroup(ctx, i)
	if err != nil {
		return model.Record{}, err
	}

	j := sort.Search(len(recs), func(j int) bool { return recs[j].ID >= id })
	if j == len(recs) || recs[j].ID != id {
		return model.Record{}, ErrNotFound
	}
	return recs[j], nil
}

// All iterates the batch in id order. Iteration stops at the first error,
// which is yielded with a zero record.
func (r *Reader) All(ctx context.Context) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		for i := range r.groups {
			recs, err := r.ReadRowGroup(ctx, i)
			if err != nil {
				yield(model.Record{}, err)
				return
			}
			for _, rec := range recs {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}
