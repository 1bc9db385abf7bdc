// Package vectorstore provides the authoritative owner of record vectors.
//
// A Store holds fixed-dimension vectors keyed by model.ID. Every mutation is
// reported synchronously to the registered observers (the ANN indexes and the
// tier manager), so an index is never queried against a different data version
// than the store.
package vectorstore

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
)

const (
	// Number of lock shards. Shard selection: id % numShards.
	numShards = 64
	shardMask = numShards - 1
)

// DefaultTier is assigned to records when no classifier is configured.
const DefaultTier model.TierID = "hot"

var (
	// ErrNotFound is returned when an id is not present in the store.
	ErrNotFound = errors.New("record not found")

	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = distance.ErrDimensionMismatch

	// ErrInvalidDimension is returned for a non-positive store dimension.
	ErrInvalidDimension = errors.New("dimension must be positive")
)

// Observer receives store mutations.
//
// Callbacks run synchronously on the writer goroutine after the mutation is
// visible to readers. Mutations of the same id are delivered in order.
// Observers must treat Record.Vector as read-only and must not write to the
// store from inside a callback.
type Observer interface {
	// OnPut is called after an insert, update or re-tier. prev is nil for inserts.
	OnPut(ctx context.Context, rec model.Record, prev *model.Record)
	// OnDelete is called after a record has been removed.
	OnDelete(ctx context.Context, rec model.Record)
}

// Classifier assigns a tier to a record.
type Classifier func(model.Record) model.TierID

type shard struct {
	mu      sync.RWMutex
	records map[model.ID]*model.Record
}

// Store is a sharded in-memory vector store.
//
// Thread-safety:
//   - Reads (Get, Lookup, Scan) only take shard read locks and never block each other
//   - Writes take a per-shard write stripe that is held through observer notification,
//     while the data lock itself is released before observers run
type Store struct {
	dim        int
	classifier Classifier
	logger     *slog.Logger

	shards [numShards]shard
	// writeMu serializes writers of one shard including their notifications.
	writeMu [numShards]sync.Mutex

	obsMu     sync.Mutex
	observers atomic.Pointer[[]Observer]

	count atomic.Int64
}

type options struct {
	classifier Classifier
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*options)

// WithClassifier sets the function used to assign a tier on every put.
func WithClassifier(c Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithLogger configures the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a store for vectors of the given dimension.
func New(dim int, optFns ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}

	opts := options{
		classifier: func(model.Record) model.TierID { return DefaultTier },
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{
		dim:        dim,
		classifier: opts.classifier,
		logger:     opts.logger,
	}
	for i := range s.shards {
		s.shards[i].records = make(map[model.ID]*model.Record)
	}
	empty := []Observer{}
	s.observers.Store(&empty)

	return s, nil
}

// Dimension returns the fixed vector dimension of the store.
func (s *Store) Dimension() int {
	return s.dim
}

// Len returns the number of records in the store.
func (s *Store) Len() int {
	return int(s.count.Load())
}

// Subscribe registers an observer. Observers registered later are notified later.
func (s *Store) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	curr := *s.observers.Load()
	next := make([]Observer, len(curr), len(curr)+1)
	copy(next, curr)
	next = append(next, o)
	s.observers.Store(&next)
}

// Put inserts or updates the vector for id.
//
// On insert, ts becomes CreatedAt. On update, the vector is replaced, CreatedAt
// is kept and ts becomes UpdatedAt. The tier is (re)assigned by the classifier.
func (s *Store) Put(ctx context.Context, id model.ID, vec []float32, ts time.Time) error {
	if len(vec) != s.dim {
		return &distance.DimensionMismatchError{Expected: s.dim, Actual: len(vec)}
	}

	v := make([]float32, len(vec))
	copy(v, vec)

	return s.apply(ctx, id, func(prev *model.Record) (*model.Record, error) {
		rec := &model.Record{ID: id, Vector: v, CreatedAt: ts}
		if prev != nil {
			rec.CreatedAt = prev.CreatedAt
			rec.UpdatedAt = ts
		}
		rec.Tier = s.classifier(*rec)
		return rec, nil
	})
}

// PutRecord stores a complete record as-is, including timestamps and tier.
// An empty tier is assigned by the classifier.
func (s *Store) PutRecord(ctx context.Context, rec model.Record) error {
	if len(rec.Vector) != s.dim {
		return &distance.DimensionMismatchError{Expected: s.dim, Actual: len(rec.Vector)}
	}

	r := rec.Clone()
	if r.Tier == "" {
		r.Tier = s.classifier(r)
	}

	return s.apply(ctx, r.ID, func(*model.Record) (*model.Record, error) {
		return &r, nil
	})
}

// SetTier moves a record to another tier without touching its vector.
func (s *Store) SetTier(ctx context.Context, id model.ID, tier model.TierID) error {
	return s.apply(ctx, id, func(prev *model.Record) (*model.Record, error) {
		if prev == nil {
			return nil, ErrNotFound
		}
		if prev.Tier == tier {
			return prev, errUnchanged
		}
		next := *prev
		next.Tier = tier
		return &next, nil
	})
}

// Get returns a copy of the record stored under id.
func (s *Store) Get(id model.ID) (model.Record, error) {
	sh := &s.shards[id&shardMask]
	sh.mu.RLock()
	rec, ok := sh.records[id]
	if !ok {
		sh.mu.RUnlock()
		return model.Record{}, ErrNotFound
	}
	out := rec.Clone()
	sh.mu.RUnlock()
	return out, nil
}

// Lookup returns the stored vector and tier for id without copying.
// The returned slice must be treated as read-only: the store never mutates a
// published vector in place, it replaces it.
func (s *Store) Lookup(id model.ID) ([]float32, model.TierID, bool) {
	sh := &s.shards[id&shardMask]
	sh.mu.RLock()
	rec, ok := sh.records[id]
	if !ok {
		sh.mu.RUnlock()
		return nil, "", false
	}
	v, t := rec.Vector, rec.Tier
	sh.mu.RUnlock()
	return v, t, true
}

// Contains reports whether id is present.
func (s *Store) Contains(id model.ID) bool {
	_, _, ok := s.Lookup(id)
	return ok
}

// Delete removes id from the store.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	_, err := s.remove(ctx, id, nil)
	return err
}

// CompareAndDelete removes expect.ID only if the stored record still matches
// expect: a bit-identical vector, the same update time and the same tier. An
// empty expect.Tier matches any tier. It returns false without error on a
// mismatch.
func (s *Store) CompareAndDelete(ctx context.Context, expect model.Record) (bool, error) {
	return s.remove(ctx, expect.ID, func(rec *model.Record) bool {
		if expect.Tier != "" && rec.Tier != expect.Tier {
			return false
		}
		return SameVector(rec.Vector, expect.Vector) && rec.UpdatedAt.Equal(expect.UpdatedAt)
	})
}

// Scan returns a lazy sequence of records matching pred (nil matches all).
//
// Each iteration walks the shards in order and snapshots one shard at a time,
// so the sequence is finite and can be restarted by ranging over it again.
// Yielded vectors alias store memory and must be treated as read-only.
func (s *Store) Scan(pred func(model.Record) bool) iter.Seq[model.Record] {
	return func(yield func(model.Record) bool) {
		buf := make([]model.Record, 0, 64)
		for i := range s.shards {
			sh := &s.shards[i]

			buf = buf[:0]
			sh.mu.RLock()
			for _, rec := range sh.records {
				buf = append(buf, *rec)
			}
			sh.mu.RUnlock()

			for _, rec := range buf {
				if pred != nil && !pred(rec) {
					continue
				}
				if !yield(rec) {
					return
				}
			}
		}
	}
}

// SameVector reports whether a and b are bit-identical.
func SameVector(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

var errUnchanged = errors.New("unchanged")

// apply runs mutate under the shard locks and notifies observers.
func (s *Store) apply(ctx context.Context, id model.ID, mutate func(prev *model.Record) (*model.Record, error)) error {
	idx := id & shardMask
	s.writeMu[idx].Lock()
	defer s.writeMu[idx].Unlock()

	sh := &s.shards[idx]
	sh.mu.Lock()
	prev := sh.records[id]
	next, err := mutate(prev)
	if err != nil {
		sh.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	sh.records[id] = next
	sh.mu.Unlock()

	if prev == nil {
		s.count.Add(1)
	}

	for _, o := range *s.observers.Load() {
		o.OnPut(ctx, *next, prev)
	}

	s.logger.DebugContext(ctx, "record stored", "id", id, "tier", next.Tier, "update", prev != nil)
	return nil
}

func (s *Store) remove(ctx context.Context, id model.ID, cond func(*model.Record) bool) (bool, error) {
	idx := id & shardMask
	s.writeMu[idx].Lock()
	defer s.writeMu[idx].Unlock()

	sh := &s.shards[idx]
	sh.mu.Lock()
	rec, ok := sh.records[id]
	if !ok {
		sh.mu.Unlock()
		return false, ErrNotFound
	}
	if cond != nil && !cond(rec) {
		sh.mu.Unlock()
		return false, nil
	}
	delete(sh.records, id)
	sh.mu.Unlock()

	s.count.Add(-1)

	for _, o := range *s.observers.Load() {
		o.OnDelete(ctx, *rec)
	}

	s.logger.DebugContext(ctx, "record deleted", "id", id, "tier", rec.Tier)
	return true, nil
}
