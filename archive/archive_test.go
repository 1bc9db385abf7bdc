package archive

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/testutil"
	"github.com/hupe1980/vectier/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(n, dim int) []model.Record {
	rng := testutil.NewRNG(7)
	recs := testutil.Records(rng.UniformVectors(n, dim), 100, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC))
	for i := range recs {
		recs[i].Tier = "2020"
		if i%3 == 0 {
			recs[i].UpdatedAt = recs[i].CreatedAt.Add(time.Hour)
		}
	}
	return recs
}

func encode(t *testing.T, recs []model.Record, dim int, opts ...WriterOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := WriteRecords(&buf, dim, recs, opts...)
	require.NoError(t, err)
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte) *Reader {
	t.Helper()
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "batch", data))
	b, err := store.Open(ctx, "batch")
	require.NoError(t, err)
	r, err := Open(ctx, b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRoundTrip(t *testing.T) {
	recs := sampleRecords(1000, 16)

	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZSTD} {
		t.Run(codec.String(), func(t *testing.T) {
			ctx := context.Background()
			r := openBytes(t, encode(t, recs, 16, WithCodec(codec), WithRowGroupRows(128), WithTier("2020")))

			assert.Equal(t, 1000, r.Len())
			assert.Equal(t, 16, r.Dimension())
			assert.Equal(t, model.TierID("2020"), r.Tier())
			assert.Equal(t, codec, r.Header().Codec)
			assert.Len(t, r.RowGroups(), 8)

			i := 0
			for rec, err := range r.All(ctx) {
				require.NoError(t, err)
				want := recs[i]
				assert.Equal(t, want.ID, rec.ID)
				assert.True(t, want.CreatedAt.Equal(rec.CreatedAt))
				assert.Equal(t, want.UpdatedAt.IsZero(), rec.UpdatedAt.IsZero())
				assert.Equal(t, want.Vector, rec.Vector)
				i++
			}
			assert.Equal(t, 1000, i)
		})
	}
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	recs := sampleRecords(500, 8)
	r := openBytes(t, encode(t, recs, 8, WithRowGroupRows(64)))

	for _, idx := range []int{0, 63, 64, 250, 499} {
		got, err := r.Get(ctx, recs[idx].ID)
		require.NoError(t, err)
		assert.Equal(t, recs[idx].ID, got.ID)
		assert.Equal(t, recs[idx].Vector, got.Vector)
	}

	_, err := r.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(ctx, 100_000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSparseIDs(t *testing.T) {
	ctx := context.Background()
	recs := []model.Record{
		{ID: 10, Vector: []float32{1, 2}},
		{ID: 20, Vector: []float32{3, 4}},
		{ID: 30, Vector: []float32{5, 6}},
	}
	r := openBytes(t, encode(t, recs, 2, WithRowGroupRows(2)))

	got, err := r.Get(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6}, got.Vector)

	_, err = r.Get(ctx, 15)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteRecordsSorts(t *testing.T) {
	recs := []model.Record{
		{ID: 3, Vector: []float32{3}},
		{ID: 1, Vector: []float32{1}},
		{ID: 2, Vector: []float32{2}},
	}
	r := openBytes(t, encode(t, recs, 1))

	var ids []model.ID
	for rec, err := range r.All(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []model.ID{1, 2, 3}, ids)
	assert.Equal(t, model.ID(3), recs[0].ID, "input must not be reordered")
}

func TestPreservesVectorBits(t *testing.T) {
	negZero := float32(0)
	negZero = -negZero
	recs := []model.Record{{ID: 1, Vector: []float32{negZero, 1e-38, -3.5}}}

	got, err := openBytes(t, encode(t, recs, 3)).Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, vectorstore.SameVector(recs[0].Vector, got.Vector))
}

func TestTimestampsOutsideUnixNanoRange(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		updated time.Time
	}{
		{"far past", time.Date(1500, 6, 1, 12, 30, 0, 0, time.UTC), time.Time{}},
		{"far future", time.Date(2500, 1, 1, 0, 0, 0, 999_999_999, time.UTC), time.Date(3000, 2, 3, 4, 5, 6, 7, time.UTC)},
		{"before epoch with nanos", time.Date(1969, 12, 31, 23, 59, 59, 500, time.UTC), time.Date(1, 1, 1, 0, 0, 1, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := []model.Record{{ID: 1, Vector: []float32{1, 2}, CreatedAt: tt.created, UpdatedAt: tt.updated}}

			got, err := openBytes(t, encode(t, recs, 2)).Get(context.Background(), 1)
			require.NoError(t, err)
			assert.True(t, tt.created.Equal(got.CreatedAt), "created: want %v, got %v", tt.created, got.CreatedAt)
			assert.True(t, tt.updated.Equal(got.UpdatedAt), "updated: want %v, got %v", tt.updated, got.UpdatedAt)
			assert.Equal(t, tt.updated.IsZero(), got.UpdatedAt.IsZero())
		})
	}
}

func TestWriterErrors(t *testing.T) {
	var buf bytes.Buffer

	_, err := NewWriter(&buf, 0)
	assert.Error(t, err)

	w, err := NewWriter(&buf, 2)
	require.NoError(t, err)

	err = w.Append(model.Record{ID: 1, Vector: []float32{1}})
	var dimErr *distance.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Expected)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, w.Append(model.Record{ID: 5, Vector: []float32{1, 2}}))
	assert.ErrorIs(t, w.Append(model.Record{ID: 5, Vector: []float32{1, 2}}), ErrUnsorted)
	assert.ErrorIs(t, w.Append(model.Record{ID: 4, Vector: []float32{1, 2}}), ErrUnsorted)

	s, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Rows)
	assert.Equal(t, model.ID(5), s.FirstID)
	assert.Equal(t, int64(buf.Len()), s.Bytes)

	_, err = w.Close()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Append(model.Record{ID: 9, Vector: []float32{1, 2}}), ErrClosed)
}

func TestEmptyBatch(t *testing.T) {
	r := openBytes(t, encode(t, nil, 4, WithTier("2019")))

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, model.TierID("2019"), r.Tier())
	_, err := r.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorruption(t *testing.T) {
	ctx := context.Background()
	data := encode(t, sampleRecords(64, 4), 4, WithRowGroupRows(16), WithCodec(CodecNone))

	t.Run("RowGroupChecksum", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[headerFixedSize+blockHeaderSize+3] ^= 0xFF

		r := openBytes(t, bad)
		_, err := r.ReadRowGroup(ctx, 0)
		assert.ErrorIs(t, err, ErrChecksum)
		assert.ErrorIs(t, err, ErrCorrupt)

		// Other row groups still readable.
		_, err = r.ReadRowGroup(ctx, 1)
		assert.NoError(t, err)
	})

	t.Run("FooterChecksum", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-trailerSize-10] ^= 0xFF

		store := blobstore.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "b", bad))
		b, err := store.Open(ctx, "b")
		require.NoError(t, err)
		_, err = Open(ctx, b)
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("Truncated", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "b", data[:len(data)-5]))
		b, err := store.Open(ctx, "b")
		require.NoError(t, err)
		_, err = Open(ctx, b)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("TooSmall", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "b", []byte("VTAR")))
		b, err := store.Open(ctx, "b")
		require.NoError(t, err)
		_, err = Open(ctx, b)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestCompressionShrinksRedundantData(t *testing.T) {
	recs := make([]model.Record, 512)
	for i := range recs {
		recs[i] = model.Record{ID: model.ID(i + 1), Vector: make([]float32, 32)}
	}

	raw := encode(t, recs, 32, WithCodec(CodecNone))
	lz := encode(t, recs, 32, WithCodec(CodecLZ4))
	zs := encode(t, recs, 32, WithCodec(CodecZSTD))

	assert.Less(t, len(lz), len(raw)/2)
	assert.Less(t, len(zs), len(raw)/2)
}

func TestParseCodec(t *testing.T) {
	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZSTD} {
		got, err := ParseCodec(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCodec("snappy")
	assert.Error(t, err)
}

func TestLocalStoreLookup(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	recs := sampleRecords(300, 8)

	w, err := store.Create(ctx, "2020/batch-1.vta")
	require.NoError(t, err)
	_, err = WriteRecords(w, 8, recs, WithTier("2020"), WithCodec(CodecZSTD))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := store.Open(ctx, "2020/batch-1.vta")
	require.NoError(t, err)
	r, err := Open(ctx, b)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.Get(ctx, recs[123].ID)
	require.NoError(t, err)
	assert.Equal(t, recs[123].Vector, got.Vector)
	assert.Equal(t, model.TierID("2020"), got.Tier)
}
