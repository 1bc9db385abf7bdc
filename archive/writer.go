package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
)

// WriterOption configures a Writer.
type WriterOption func(*Header)

// WithCodec selects the row-group compression. The default is LZ4.
func WithCodec(c Codec) WriterOption {
	return func(h *Header) { h.Codec = c }
}

// WithRowGroupRows sets the number of records per row group.
func WithRowGroupRows(n int) WriterOption {
	return func(h *Header) {
		if n > 0 {
			h.RowGroupRows = n
		}
	}
}

// WithTier records the tier the batch belongs to.
func WithTier(tier model.TierID) WriterOption {
	return func(h *Header) { h.Tier = tier }
}

// Summary describes a finished batch.
type Summary struct {
	Rows      int
	RowGroups int
	Bytes     int64
	FirstID   model.ID
	LastID    model.ID
}

// Writer streams records into a batch. Records must be appended in strictly
// ascending id order.
type Writer struct {
	w      io.Writer
	header Header
	off    int64

	pending []model.Record
	groups  []RowGroup
	rows    int
	lastID  model.ID
	closed  bool
}

// NewWriter writes the batch header to w.
func NewWriter(w io.Writer, dim int, opts ...WriterOption) (*Writer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("archive: invalid dimension %d", dim)
	}

	h := Header{
		Version:      Version,
		Codec:        CodecLZ4,
		Dimension:    dim,
		RowGroupRows: DefaultRowGroupRows,
	}
	for _, opt := range opts {
		opt(&h)
	}
	if len(h.Tier) > 0xFFFF {
		return nil, fmt.Errorf("archive: tier name too long")
	}

	wr := &Writer{w: w, header: h}
	if err := wr.write(h.encode()); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.off += int64(n)
	return err
}

// Append adds rec to the batch.
func (w *Writer) Append(rec model.Record) error {
	if w.closed {
		return ErrClosed
	}
	if len(rec.Vector) != w.header.Dimension {
		return &distance.DimensionMismatchError{Expected: w.header.Dimension, Actual: len(rec.Vector)}
	}
	if w.rows > 0 && rec.ID <= w.lastID {
		return fmt.Errorf("%w: %d after %d", ErrUnsorted, rec.ID, w.lastID)
	}

	w.pending = append(w.pending, rec)
	w.rows++
	w.lastID = rec.ID

	if len(w.pending) >= w.header.RowGroupRows {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.pending) == 0 {
		return nil
	}

	stored, err := encodeBlock(encodeRows(w.pending, w.header.Dimension), w.header.Codec)
	if err != nil {
		return err
	}

	g := RowGroup{
		Offset:   w.off,
		Length:   len(stored),
		Rows:     len(w.pending),
		FirstID:  w.pending[0].ID,
		LastID:   w.pending[len(w.pending)-1].ID,
		Checksum: xxhash.Sum64(stored),
	}
	if err := w.write(stored); err != nil {
		return err
	}

	w.groups = append(w.groups, g)
	w.pending = w.pending[:0]
	return nil
}

// Close flushes the last row group and writes the footer and trailer. It
// does not close the underlying writer.
func (w *Writer) Close() (Summary, error) {
	if w.closed {
		return Summary{}, ErrClosed
	}
	w.closed = true

	if err := w.flush(); err != nil {
		return Summary{}, err
	}

	footer := make([]byte, 4+dirEntrySize*len(w.groups))
	binary.LittleEndian.PutUint32(footer, uint32(len(w.groups)))
	for i, g := range w.groups {
		g.encode(footer[4+i*dirEntrySize:])
	}

	t := trailer{
		footerOffset:   w.off,
		footerLength:   len(footer),
		footerChecksum: xxhash.Sum64(footer),
	}
	if err := w.write(footer); err != nil {
		return Summary{}, err
	}
	if err := w.write(t.encode()); err != nil {
		return Summary{}, err
	}

	s := Summary{Rows: w.rows, RowGroups: len(w.groups), Bytes: w.off}
	if len(w.groups) > 0 {
		s.FirstID = w.groups[0].FirstID
		s.LastID = w.groups[len(w.groups)-1].LastID
	}
	return s, nil
}

// WriteRecords writes recs as one batch, sorting a copy by id first.
func WriteRecords(w io.Writer, dim int, recs []model.Record, opts ...WriterOption) (Summary, error) {
	sorted := slices.Clone(recs)
	slices.SortFunc(sorted, func(a, b model.Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	wr, err := NewWriter(w, dim, opts...)
	if err != nil {
		return Summary{}, err
	}
	for _, r := range sorted {
		if err := wr.Append(r); err != nil {
			return Summary{}, err
		}
	}
	return wr.Close()
}
