package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/vectier/model"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrNotFound is returned when a batch is not in the catalog.
	ErrNotFound = errors.New("catalog: batch not found")
	// ErrExists is returned when publishing a batch name twice.
	ErrExists = errors.New("catalog: batch already exists")
	// ErrConflict is returned when a concurrent writer changed an entry.
	ErrConflict = errors.New("catalog: concurrent modification")
)

// Entry describes one archived batch.
type Entry struct {
	Tier  model.TierID
	Batch string
	// Backend is a human readable label of where the batch is stored.
	Backend string
	// Visible holds the ids of the batch that are still served from it.
	Visible   *roaring64.Bitmap
	Rows      int
	FirstID   model.ID
	LastID    model.ID
	CreatedAt time.Time
	RunID     string
	// Version increments on every change and guards conditional writes.
	Version uint64
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	if e.Visible != nil {
		e.Visible = e.Visible.Clone()
	}
	return e
}

// Contains reports whether id is visible in the batch.
func (e Entry) Contains(id model.ID) bool {
	return e.Visible != nil && e.Visible.Contains(uint64(id))
}

// VisibleCount returns the number of visible ids.
func (e Entry) VisibleCount() int {
	if e.Visible == nil {
		return 0
	}
	return int(e.Visible.GetCardinality())
}

// Catalog is the durable index of archived batches.
type Catalog interface {
	// Put publishes a new entry. Publishing an existing batch fails with ErrExists.
	Put(ctx context.Context, e Entry) error
	// Entries returns the entries of tier ordered by batch name.
	Entries(ctx context.Context, tier model.TierID) ([]Entry, error)
	// Hide removes ids from the visible set of a batch.
	Hide(ctx context.Context, tier model.TierID, batch string, ids []model.ID) error
	// Tiers returns the tiers that have at least one entry, sorted.
	Tiers(ctx context.Context) ([]model.TierID, error)
}

// Locate returns the entry whose visible set contains id.
func Locate(ctx context.Context, c Catalog, tier model.TierID, id model.ID) (Entry, bool, error) {
	entries, err := c.Entries(ctx, tier)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Contains(id) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// VisibleCount sums the visible ids over all entries of tier.
func VisibleCount(ctx context.Context, c Catalog, tier model.TierID) (int, error) {
	entries, err := c.Entries(ctx, tier)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		n += e.VisibleCount()
	}
	return n, nil
}

// Validate checks the fields every implementation requires.
func Validate(e Entry) error {
	switch {
	case e.Tier == "":
		return errors.New("catalog: entry without tier")
	case e.Batch == "":
		return errors.New("catalog: entry without batch name")
	case strings.ContainsRune(string(e.Tier), 0):
		return fmt.Errorf("catalog: invalid tier %q", e.Tier)
	}
	return nil
}

// HideIDs removes ids from the visible set of e and bumps its version.
func HideIDs(e *Entry, ids []model.ID) {
	if e.Visible == nil {
		e.Visible = roaring64.New()
	}
	for _, id := range ids {
		e.Visible.Remove(uint64(id))
	}
	e.Version++
}

// SortEntries orders entries by batch name.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Batch, b.Batch) })
}

// record is the msgpack wire form of Entry.
type record struct {
	Tier      string `msgpack:"tier"`
	Batch     string `msgpack:"batch"`
	Backend   string `msgpack:"backend,omitempty"`
	Visible   []byte `msgpack:"visible"`
	Rows      int    `msgpack:"rows"`
	FirstID   uint64 `msgpack:"first_id"`
	LastID    uint64 `msgpack:"last_id"`
	CreatedAt int64  `msgpack:"created_at"`
	RunID     string `msgpack:"run_id,omitempty"`
	Version   uint64 `msgpack:"version"`
}

// MarshalVisible serializes a visible-id bitmap.
func MarshalVisible(b *roaring64.Bitmap) ([]byte, error) {
	if b == nil {
		b = roaring64.New()
	}
	return b.MarshalBinary()
}

// UnmarshalVisible is the inverse of MarshalVisible.
func UnmarshalVisible(data []byte) (*roaring64.Bitmap, error) {
	b := roaring64.New()
	if len(data) == 0 {
		return b, nil
	}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("catalog: decode visible ids: %w", err)
	}
	return b, nil
}

// Encode serializes e with msgpack.
func Encode(e Entry) ([]byte, error) {
	visible, err := MarshalVisible(e.Visible)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&record{
		Tier:      string(e.Tier),
		Batch:     e.Batch,
		Backend:   e.Backend,
		Visible:   visible,
		Rows:      e.Rows,
		FirstID:   uint64(e.FirstID),
		LastID:    uint64(e.LastID),
		CreatedAt: e.CreatedAt.UnixNano(),
		RunID:     e.RunID,
		Version:   e.Version,
	})
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Entry, error) {
	var r record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Entry{}, fmt.Errorf("catalog: decode entry: %w", err)
	}
	visible, err := UnmarshalVisible(r.Visible)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Tier:      model.TierID(r.Tier),
		Batch:     r.Batch,
		Backend:   r.Backend,
		Visible:   visible,
		Rows:      r.Rows,
		FirstID:   model.ID(r.FirstID),
		LastID:    model.ID(r.LastID),
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		RunID:     r.RunID,
		Version:   r.Version,
	}, nil
}
