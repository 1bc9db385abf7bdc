// Package catalogtest provides a conformance suite for catalog.Catalog
// implementations.
package catalogtest

import (
	"context"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Entry returns a populated entry for tests.
func Entry(tier model.TierID, batch string, ids ...model.ID) catalog.Entry {
	visible := roaring64.New()
	for _, id := range ids {
		visible.Add(uint64(id))
	}
	e := catalog.Entry{
		Tier:      tier,
		Batch:     batch,
		Backend:   "memory",
		Visible:   visible,
		Rows:      len(ids),
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		RunID:     "run-1",
	}
	if len(ids) > 0 {
		e.FirstID, e.LastID = ids[0], ids[len(ids)-1]
	}
	return e
}

// Run exercises the Catalog contract against a fresh catalog from newCatalog.
func Run(t *testing.T, newCatalog func(t *testing.T) catalog.Catalog) {
	t.Helper()

	t.Run("PutEntries", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)

		require.NoError(t, c.Put(ctx, Entry("2020", "2020/b2", 7, 8)))
		require.NoError(t, c.Put(ctx, Entry("2020", "2020/b1", 5, 6)))
		require.NoError(t, c.Put(ctx, Entry("2019", "2019/b1", 1)))

		entries, err := c.Entries(ctx, "2020")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "2020/b1", entries[0].Batch)
		assert.Equal(t, "2020/b2", entries[1].Batch)

		e := entries[0]
		assert.Equal(t, model.TierID("2020"), e.Tier)
		assert.Equal(t, "memory", e.Backend)
		assert.Equal(t, 2, e.Rows)
		assert.Equal(t, model.ID(5), e.FirstID)
		assert.Equal(t, model.ID(6), e.LastID)
		assert.Equal(t, "run-1", e.RunID)
		assert.True(t, e.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
		assert.True(t, e.Contains(5))
		assert.True(t, e.Contains(6))
		assert.False(t, e.Contains(7))

		tiers, err := c.Tiers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.TierID{"2019", "2020"}, tiers)

		none, err := c.Entries(ctx, "2030")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("PutDuplicate", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)

		require.NoError(t, c.Put(ctx, Entry("2020", "2020/b1", 1)))
		assert.ErrorIs(t, c.Put(ctx, Entry("2020", "2020/b1", 2)), catalog.ErrExists)
	})

	t.Run("PutInvalid", func(t *testing.T) {
		c := newCatalog(t)
		assert.Error(t, c.Put(context.Background(), Entry("", "b")))
		assert.Error(t, c.Put(context.Background(), Entry("2020", "")))
	})

	t.Run("Hide", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)

		require.NoError(t, c.Put(ctx, Entry("2020", "2020/b1", 5, 6, 7)))
		require.NoError(t, c.Hide(ctx, "2020", "2020/b1", []model.ID{6, 42}))

		e, ok, err := catalog.Locate(ctx, c, "2020", 5)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2020/b1", e.Batch)
		assert.Equal(t, 2, e.VisibleCount())

		_, ok, err = catalog.Locate(ctx, c, "2020", 6)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := catalog.VisibleCount(ctx, c, "2020")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		assert.ErrorIs(t, c.Hide(ctx, "2020", "missing", []model.ID{5}), catalog.ErrNotFound)
	})

	t.Run("EntriesAreCopies", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)

		require.NoError(t, c.Put(ctx, Entry("2020", "2020/b1", 5)))
		entries, err := c.Entries(ctx, "2020")
		require.NoError(t, err)
		entries[0].Visible.Remove(5)

		again, err := c.Entries(ctx, "2020")
		require.NoError(t, err)
		assert.True(t, again[0].Contains(5))
	})
}
