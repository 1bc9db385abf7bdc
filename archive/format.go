package archive

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/vectier/model"
)

const (
	// Version is the current format version.
	Version uint16 = 1

	// DefaultRowGroupRows is the default number of records per row group.
	DefaultRowGroupRows = 256

	headerFixedSize = 18 // magic + version + codec + flags + dim + rows per group + tier length
	dirEntrySize    = 44
	trailerSize     = 24
)

var (
	headerMagic  = [4]byte{'V', 'T', 'A', 'R'}
	trailerMagic = [4]byte{'V', 'T', 'A', 'E'}
)

// absentNanos in a nanosecond column encodes a zero time.Time. Valid values
// are below 1e9.
const absentNanos uint32 = math.MaxUint32

// rowFixedSize is the per-row size of the id and timestamp columns.
const rowFixedSize = 8 + 2*(8+4)

// Header describes a batch.
type Header struct {
	Version      uint16
	Codec        Codec
	Dimension    int
	RowGroupRows int
	Tier         model.TierID
}

func (h Header) encode() []byte {
	buf := make([]byte, headerFixedSize+len(h.Tier))
	copy(buf[0:4], headerMagic[:])
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	buf[6] = byte(h.Codec)
	buf[7] = 0
	binary.LittleEndian.PutUint32(buf[8:], uint32(h.Dimension))
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.RowGroupRows))
	binary.LittleEndian.PutUint16(buf[16:], uint16(len(h.Tier)))
	copy(buf[headerFixedSize:], h.Tier)
	return buf
}

// decodeHeaderFixed parses the fixed header part and returns the tier length.
func decodeHeaderFixed(buf []byte) (Header, int, error) {
	if len(buf) < headerFixedSize || [4]byte(buf[0:4]) != headerMagic {
		return Header{}, 0, fmt.Errorf("%w: bad header magic", ErrCorrupt)
	}
	h := Header{
		Version:      binary.LittleEndian.Uint16(buf[4:]),
		Codec:        Codec(buf[6]),
		Dimension:    int(binary.LittleEndian.Uint32(buf[8:])),
		RowGroupRows: int(binary.LittleEndian.Uint32(buf[12:])),
	}
	if h.Version != Version {
		return Header{}, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Dimension <= 0 {
		return Header{}, 0, fmt.Errorf("%w: dimension %d", ErrCorrupt, h.Dimension)
	}
	return h, int(binary.LittleEndian.Uint16(buf[16:])), nil
}

// RowGroup is one footer directory entry.
type RowGroup struct {
	Offset   int64
	Length   int
	Rows     int
	FirstID  model.ID
	LastID   model.ID
	Checksum uint64
}

func (g RowGroup) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(g.Offset))
	binary.LittleEndian.PutUint32(buf[8:], uint32(g.Length))
	binary.LittleEndian.PutUint32(buf[12:], uint32(g.Rows))
	binary.LittleEndian.PutUint64(buf[16:], uint64(g.FirstID))
	binary.LittleEndian.PutUint64(buf[24:], uint64(g.LastID))
	binary.LittleEndian.PutUint64(buf[32:], g.Checksum)
	// 4 reserved bytes
}

func decodeRowGroup(buf []byte) RowGroup {
	return RowGroup{
		Offset:   int64(binary.LittleEndian.Uint64(buf[0:])),
		Length:   int(binary.LittleEndian.Uint32(buf[8:])),
		Rows:     int(binary.LittleEndian.Uint32(buf[12:])),
		FirstID:  model.ID(binary.LittleEndian.Uint64(buf[16:])),
		LastID:   model.ID(binary.LittleEndian.Uint64(buf[24:])),
		Checksum: binary.LittleEndian.Uint64(buf[32:]),
	}
}

type trailer struct {
	footerOffset   int64
	footerLength   int
	footerChecksum uint64
}

func (t trailer) encode() []byte {
	buf := make([]byte, trailerSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(t.footerOffset))
	binary.LittleEndian.PutUint32(buf[8:], uint32(t.footerLength))
	binary.LittleEndian.PutUint64(buf[12:], t.footerChecksum)
	copy(buf[20:], trailerMagic[:])
	return buf
}

func decodeTrailer(buf []byte) (trailer, error) {
	if len(buf) != trailerSize || [4]byte(buf[20:24]) != trailerMagic {
		return trailer{}, fmt.Errorf("%w: bad trailer magic", ErrCorrupt)
	}
	return trailer{
		footerOffset:   int64(binary.LittleEndian.Uint64(buf[0:])),
		footerLength:   int(binary.LittleEndian.Uint32(buf[8:])),
		footerChecksum: binary.LittleEndian.Uint64(buf[12:]),
	}, nil
}

// encodeTime splits t into Unix seconds and nanoseconds so any time.Time
// round-trips, not only the UnixNano range.
func encodeTime(t time.Time) (uint64, uint32) {
	if t.IsZero() {
		return 0, absentNanos
	}
	return uint64(t.Unix()), uint32(t.Nanosecond())
}

func decodeTime(sec uint64, nsec uint32) time.Time {
	if nsec == absentNanos {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

// encodeRows lays recs out column by column.
func encodeRows(recs []model.Record, dim int) []byte {
	n := len(recs)
	buf := make([]byte, n*(rowFixedSize+4*dim))

	ids := buf[:8*n]
	createdSec := buf[8*n : 16*n]
	createdNsec := buf[16*n : 20*n]
	updatedSec := buf[20*n : 28*n]
	updatedNsec := buf[28*n : 32*n]
	vectors := buf[32*n:]

	for i, r := range recs {
		binary.LittleEndian.PutUint64(ids[8*i:], uint64(r.ID))
		sec, nsec := encodeTime(r.CreatedAt)
		binary.LittleEndian.PutUint64(createdSec[8*i:], sec)
		binary.LittleEndian.PutUint32(createdNsec[4*i:], nsec)
		sec, nsec = encodeTime(r.UpdatedAt)
		binary.LittleEndian.PutUint64(updatedSec[8*i:], sec)
		binary.LittleEndian.PutUint32(updatedNsec[4*i:], nsec)
		off := 4 * dim * i
		for j, f := range r.Vector {
			binary.LittleEndian.PutUint32(vectors[off+4*j:], math.Float32bits(f))
		}
	}
	return buf
}

// decodeRows is the inverse of encodeRows. Vectors share one backing array.
func decodeRows(buf []byte, rows, dim int, tier model.TierID) ([]model.Record, error) {
	if len(buf) != rows*(rowFixedSize+4*dim) {
		return nil, fmt.Errorf("%w: row group size %d for %d rows", ErrCorrupt, len(buf), rows)
	}

	ids := buf[:8*rows]
	createdSec := buf[8*rows : 16*rows]
	createdNsec := buf[16*rows : 20*rows]
	updatedSec := buf[20*rows : 28*rows]
	updatedNsec := buf[28*rows : 32*rows]
	vectors := buf[32*rows:]

	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(vectors[4*i:]))
	}

	out := make([]model.Record, rows)
	for i := range out {
		out[i] = model.Record{
			ID:        model.ID(binary.LittleEndian.Uint64(ids[8*i:])),
			Vector:    data[i*dim : (i+1)*dim : (i+1)*dim],
			CreatedAt: decodeTime(binary.LittleEndian.Uint64(createdSec[8*i:]), binary.LittleEndian.Uint32(createdNsec[4*i:])),
			UpdatedAt: decodeTime(binary.LittleEndian.Uint64(updatedSec[8*i:]), binary.LittleEndian.Uint32(updatedNsec[4*i:])),
			Tier:      tier,
		}
	}
	return out, nil
}
